package fsm

import (
	"context"
	"errors"
	"strings"

	"log/slog"

	"github.com/mrodionov/todobot/bot/session"
	"github.com/mrodionov/todobot/core/logger"
	"github.com/mrodionov/todobot/goals"
)

// Effect names the domain side effect of a transition.
type Effect string

const (
	// EffectNone marks transitions without domain side effects.
	EffectNone Effect = "none"
	// EffectIssueCode marks a fresh verification code on the session delta.
	EffectIssueCode Effect = "issue_code"
	// EffectCreateGoal marks a goal created in the domain store.
	EffectCreateGoal Effect = "create_goal"
)

// Outcome is the full result of one transition. The engine never persists
// anything itself: Session carries the delta for the dispatcher to save,
// CreateSession asks it to register the chat first.
type Outcome struct {
	CreateSession bool
	Session       *session.ChatSession
	Replies       []string
	Effect        Effect
	From, To      State
	Created       *goals.CreatedGoal
}

// Engine turns (session, command text) into an Outcome. It owns no session
// state: everything it needs is read from the session passed in and the
// domain store.
type Engine struct {
	store   goals.Store
	baseURL string
	newCode func() string
}

// NewEngine builds the engine around the domain store and the web app base
// URL used for deep links.
func NewEngine(store goals.Store, baseURL string) *Engine {
	return &Engine{
		store:   store,
		baseURL: baseURL,
		newCode: func() string { return RandomCode(CodeLength) },
	}
}

// Transition advances the conversation by one inbound text. A nil sess
// means the chat has no session row; the same path also covers a session
// row that vanished mid-flow, resetting the chat to the beginning instead
// of failing. The returned error is reserved for infrastructure faults;
// domain-level NotFound/Forbidden are folded into informational replies.
func (e *Engine) Transition(ctx context.Context, sess *session.ChatSession, text string) (*Outcome, error) {
	text = strings.TrimSpace(text)
	from := Derive(sess)

	var (
		out *Outcome
		err error
	)
	switch from {
	case StateUnregistered:
		out = e.unregistered(text)
	case StatePendingVerification:
		out = e.pendingVerification(sess, text)
	case StateMenu:
		out, err = e.menu(ctx, sess, text)
	case StateChoosingCategory:
		out, err = e.choosingCategory(ctx, sess, text)
	case StateComposingGoal:
		out, err = e.composingGoal(ctx, sess, text)
	}
	if err != nil {
		return nil, err
	}

	out.From = from
	if out.Effect == "" {
		out.Effect = EffectNone
	}
	out.To = Derive(resultSession(sess, out))

	logger.FSM.LogAttrs(ctx, slog.LevelDebug, "fsm.transition",
		slog.String("event", "transition"),
		slog.String("state", string(out.From)),
		slog.String("next_state", string(out.To)),
		slog.String("command", logger.SanitizeLimit(text, 64)),
		slog.String("effect", string(out.Effect)),
		slog.Int("replies", len(out.Replies)),
	)
	return out, nil
}

func resultSession(prev *session.ChatSession, out *Outcome) *session.ChatSession {
	if out.Session != nil {
		return out.Session
	}
	if out.CreateSession {
		// Fresh sessions start not verified; derive from a blank record.
		return &session.ChatSession{Status: session.StatusNotVerified}
	}
	return prev
}

func (e *Engine) unregistered(text string) *Outcome {
	if text == cmdStart {
		return &Outcome{
			CreateSession: true,
			Replies:       []string{replyWelcome},
		}
	}
	return &Outcome{Replies: []string{replyStart}}
}

func (e *Engine) pendingVerification(sess *session.ChatSession, text string) *Outcome {
	next := sess.Clone()
	next.VerificationCode = e.newCode()
	// A not-verified session never keeps category selection state.
	next.SelectedCategoryID = nil
	next.Choosing = false

	out := &Outcome{Session: next, Effect: EffectIssueCode}
	switch text {
	case cmdCheck:
		out.Replies = []string{replyNotVerified(next.VerificationCode)}
	case cmdStart:
		out.Replies = []string{replyCheckHint, replySendCode(next.VerificationCode)}
	default:
		out.Replies = []string{replySendCode(next.VerificationCode)}
	}
	return out
}

func (e *Engine) menu(ctx context.Context, sess *session.ChatSession, text string) (*Outcome, error) {
	switch text {
	case cmdStart:
		return &Outcome{Replies: []string{replyMenuHint}}, nil

	case cmdCheck:
		// The hand-off already happened; confirm instead of reissuing.
		return &Outcome{Replies: []string{replyVerified, replyMenuHint}}, nil

	case cmdGoals:
		list, err := e.store.ListActiveGoals(ctx, *sess.AccountID)
		if isDomainErr(err) {
			return &Outcome{Replies: []string{replyEmptyGoals}}, nil
		}
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return &Outcome{Replies: []string{replyEmptyGoals}}, nil
		}
		titles := make([]string, 0, len(list))
		for _, g := range list {
			titles = append(titles, g.Title)
		}
		return &Outcome{Replies: []string{replyGoals(titles)}}, nil

	case cmdCreate:
		cats, err := e.store.ListWritableCategories(ctx, *sess.AccountID)
		if isDomainErr(err) {
			return &Outcome{Replies: []string{replyEmptyCats}}, nil
		}
		if err != nil {
			return nil, err
		}
		if len(cats) == 0 {
			return &Outcome{Replies: []string{replyEmptyCats}}, nil
		}
		titles := make([]string, 0, len(cats))
		for _, c := range cats {
			titles = append(titles, c.Title)
		}
		next := sess.Clone()
		next.Choosing = true
		return &Outcome{
			Session: next,
			Replies: []string{replyCategories(titles)},
		}, nil

	default:
		return &Outcome{Replies: []string{replyError}}, nil
	}
}

func (e *Engine) choosingCategory(ctx context.Context, sess *session.ChatSession, text string) (*Outcome, error) {
	if text == cmdCancel {
		next := sess.Clone()
		next.Choosing = false
		return &Outcome{
			Session: next,
			Replies: []string{replyCancel, replyMenuHint},
		}, nil
	}

	cats, err := e.store.ListWritableCategories(ctx, *sess.AccountID)
	if err != nil && !isDomainErr(err) {
		return nil, err
	}
	if len(cats) == 0 {
		// All categories vanished since /create listed them.
		next := sess.Clone()
		next.Choosing = false
		return &Outcome{
			Session: next,
			Replies: []string{replyEmptyCats, replyMenuHint},
		}, nil
	}

	for _, c := range cats {
		if strings.EqualFold(c.Title, text) {
			next := sess.Clone()
			id := c.ID
			next.SelectedCategoryID = &id
			next.Choosing = false
			return &Outcome{
				Session: next,
				Replies: []string{replyCreatePrompt(c.Title)},
			}, nil
		}
	}
	return &Outcome{Replies: []string{replyError}}, nil
}

func (e *Engine) composingGoal(ctx context.Context, sess *session.ChatSession, text string) (*Outcome, error) {
	if text == cmdCancel {
		next := sess.Clone()
		next.SelectedCategoryID = nil
		return &Outcome{
			Session: next,
			Replies: []string{replyCancel, replyMenuHint},
		}, nil
	}
	if text == "" {
		return &Outcome{Replies: []string{replyError}}, nil
	}

	created, err := e.store.CreateGoal(ctx, *sess.AccountID, *sess.SelectedCategoryID, text)
	if isDomainErr(err) {
		logger.FSM.LogAttrs(ctx, slog.LevelWarn, "goal create rejected",
			slog.String("event", "goal.create.rejected"),
			slog.Int64("category_id", *sess.SelectedCategoryID),
			slog.String("err", err.Error()),
		)
		next := sess.Clone()
		next.SelectedCategoryID = nil
		return &Outcome{
			Session: next,
			Replies: []string{replyCreateFailed},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	next := sess.Clone()
	next.SelectedCategoryID = nil
	return &Outcome{
		Session: next,
		Replies: []string{replyGoalCreated(goals.GoalLink(e.baseURL, created)), replyMenuHint},
		Effect:  EffectCreateGoal,
		Created: &created,
	}, nil
}

func isDomainErr(err error) bool {
	return errors.Is(err, goals.ErrNotFound) || errors.Is(err, goals.ErrForbidden)
}
