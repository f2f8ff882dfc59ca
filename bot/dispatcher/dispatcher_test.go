package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mrodionov/todobot/bot/fsm"
	"github.com/mrodionov/todobot/bot/session"
	"github.com/mrodionov/todobot/bot/transport"
	"github.com/mrodionov/todobot/goals"
)

type pollStep struct {
	updates []transport.Update
	err     error
}

// scriptedTransport replays a fixed poll script and cancels the run
// context once the script is exhausted.
type scriptedTransport struct {
	mu      sync.Mutex
	script  []pollStep
	polls   []int
	sent    map[int64][]string
	sendErr error
	done    context.CancelFunc
}

func newScriptedTransport(script ...pollStep) *scriptedTransport {
	return &scriptedTransport{script: script, sent: make(map[int64][]string)}
}

func (s *scriptedTransport) Poll(_ context.Context, offset int) ([]transport.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls = append(s.polls, offset)
	if len(s.script) == 0 {
		if s.done != nil {
			s.done()
		}
		return nil, nil
	}
	step := s.script[0]
	s.script = s.script[1:]
	return step.updates, step.err
}

func (s *scriptedTransport) Send(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

type noopGoals struct{}

func (noopGoals) ListActiveGoals(context.Context, int64) ([]goals.Goal, error) {
	return nil, nil
}

func (noopGoals) ListWritableCategories(context.Context, int64) ([]goals.Category, error) {
	return nil, nil
}

func (noopGoals) CreateGoal(context.Context, int64, int64, string) (goals.CreatedGoal, error) {
	return goals.CreatedGoal{}, nil
}

func runDispatcher(t *testing.T, tp *scriptedTransport, store *session.MemoryStore) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tp.done = cancel

	d := New(Options{
		Transport:        tp,
		Sessions:         store,
		Offsets:          store,
		Engine:           fsm.NewEngine(noopGoals{}, "https://todo.example.com"),
		PollRetryBackoff: time.Millisecond,
	})
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if ctx.Err() == context.DeadlineExceeded {
		t.Fatal("dispatcher did not stop on context cancel")
	}
}

func TestRunAdvancesOffsetPastBatch(t *testing.T) {
	tp := newScriptedTransport(pollStep{updates: []transport.Update{
		{ID: 5, ChatID: 1, UserID: 1, Text: "/start"},
		{ID: 7, ChatID: 2, UserID: 2, Text: "/start"},
	}})
	store := session.NewMemoryStore()

	runDispatcher(t, tp, store)

	offset, err := store.LoadOffset(context.Background())
	if err != nil {
		t.Fatalf("load offset: %v", err)
	}
	if offset != 8 {
		t.Fatalf("offset = %d, want 8", offset)
	}
	// The next poll after the batch must use the advanced offset.
	last := tp.polls[len(tp.polls)-1]
	if last != 8 {
		t.Fatalf("last polled offset = %d, want 8", last)
	}
}

func TestRunCreatesSessionsAndReplies(t *testing.T) {
	tp := newScriptedTransport(pollStep{updates: []transport.Update{
		{ID: 1, ChatID: 10, UserID: 20, Text: "/start"},
	}})
	store := session.NewMemoryStore()

	runDispatcher(t, tp, store)

	if _, err := store.Find(context.Background(), 10, 20); err != nil {
		t.Fatalf("session not created: %v", err)
	}
	if len(tp.sent[10]) != 1 {
		t.Fatalf("sent = %q, want one welcome reply", tp.sent[10])
	}
}

func TestRunSkipsMessagelessUpdatesButAdvances(t *testing.T) {
	tp := newScriptedTransport(pollStep{updates: []transport.Update{
		{ID: 3}, // e.g. an edited message or service event
	}})
	store := session.NewMemoryStore()

	runDispatcher(t, tp, store)

	offset, _ := store.LoadOffset(context.Background())
	if offset != 4 {
		t.Fatalf("offset = %d, want 4", offset)
	}
	if len(tp.sent) != 0 {
		t.Fatalf("unexpected sends: %v", tp.sent)
	}
}

func TestRunSurvivesPollErrors(t *testing.T) {
	tp := newScriptedTransport(
		pollStep{err: errors.New("getUpdates: timeout")},
		pollStep{updates: []transport.Update{
			{ID: 1, ChatID: 1, UserID: 1, Text: "/start"},
		}},
	)
	store := session.NewMemoryStore()

	runDispatcher(t, tp, store)

	// The failed poll must not advance the offset.
	if tp.polls[0] != 0 || tp.polls[1] != 0 {
		t.Fatalf("polled offsets = %v, want retry at 0", tp.polls[:2])
	}
	offset, _ := store.LoadOffset(context.Background())
	if offset != 2 {
		t.Fatalf("offset = %d, want 2", offset)
	}
}

func TestRunToleratesDuplicateDelivery(t *testing.T) {
	upd := transport.Update{ID: 1, ChatID: 1, UserID: 1, Text: "/start"}
	tp := newScriptedTransport(
		pollStep{updates: []transport.Update{upd}},
		pollStep{updates: []transport.Update{upd}},
	)
	store := session.NewMemoryStore()

	runDispatcher(t, tp, store)

	sess, err := store.Find(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if sess.Status != session.StatusNotVerified {
		t.Fatalf("status = %d", sess.Status)
	}
	offset, _ := store.LoadOffset(context.Background())
	if offset != 2 {
		t.Fatalf("offset = %d, want 2", offset)
	}
}

func TestRunKeepsGoingWhenSendFails(t *testing.T) {
	tp := newScriptedTransport(pollStep{updates: []transport.Update{
		{ID: 1, ChatID: 1, UserID: 1, Text: "/start"},
		{ID: 2, ChatID: 2, UserID: 2, Text: "/start"},
	}})
	tp.sendErr = errors.New("sendMessage: blocked")
	store := session.NewMemoryStore()

	runDispatcher(t, tp, store)

	// State changes must be persisted even when replies are lost.
	if _, err := store.Find(context.Background(), 1, 1); err != nil {
		t.Fatalf("session 1 missing: %v", err)
	}
	if _, err := store.Find(context.Background(), 2, 2); err != nil {
		t.Fatalf("session 2 missing: %v", err)
	}
	offset, _ := store.LoadOffset(context.Background())
	if offset != 3 {
		t.Fatalf("offset = %d, want 3", offset)
	}
}

func TestRunResumesFromStoredOffset(t *testing.T) {
	store := session.NewMemoryStore()
	if err := store.SaveOffset(context.Background(), 41); err != nil {
		t.Fatalf("seed offset: %v", err)
	}
	tp := newScriptedTransport()

	runDispatcher(t, tp, store)

	if len(tp.polls) == 0 || tp.polls[0] != 41 {
		t.Fatalf("first polled offset = %v, want 41", tp.polls)
	}
}
