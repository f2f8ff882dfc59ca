// Package verify implements the web-side half of the bot pairing hand-off:
// the site posts a verification code on behalf of a signed-in account and
// the matching chat session becomes verified.
package verify

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/mrodionov/todobot/bot/session"
	"github.com/mrodionov/todobot/core/logger"
)

// ErrInvalidCode means the submitted code matches no pending session. A code
// that was already consumed looks exactly the same from the outside, so the
// caller cannot probe whether a code ever existed.
var ErrInvalidCode = errors.New("invalid verification code")

// Service consumes verification codes against the session store.
type Service struct {
	sessions session.Store
}

// NewService builds a verification service on top of the session store.
func NewService(sessions session.Store) *Service {
	return &Service{sessions: sessions}
}

// Consume links the session holding code to accountID. The code is single
// use: the underlying store flips the session to verified atomically, so a
// second submission of the same code fails with ErrInvalidCode.
func (s *Service) Consume(ctx context.Context, accountID int64, code string) (*session.ChatSession, error) {
	start := time.Now()
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	sess, err := s.sessions.ConsumeVerificationCode(ctx, code, accountID)
	if errors.Is(err, session.ErrNotFound) {
		logger.VERIFY.LogAttrs(ctx, slog.LevelInfo, "code rejected",
			slog.String("event", "code.rejected"),
			slog.Int64("account_id", accountID),
			slog.Int("code_len", len(code)),
			slog.Duration("duration", logger.Took(start)),
		)
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}

	logger.VERIFY.LogAttrs(ctx, slog.LevelInfo, "session verified",
		slog.String("event", "code.consumed"),
		slog.Int64("account_id", accountID),
		slog.Int64("chat_id", sess.ChatID),
		slog.Int64("user_id", sess.UserID),
		slog.Duration("duration", logger.Took(start)),
	)
	return sess, nil
}
