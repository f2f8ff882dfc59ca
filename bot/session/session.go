// Package session persists per-chat bot sessions and the poll offset.
package session

import (
	"context"
	"errors"
	"time"
)

// VerificationStatus mirrors the status column of a chat session.
type VerificationStatus int16

const (
	// StatusNotVerified marks a session whose chat has not been linked to an account yet.
	StatusNotVerified VerificationStatus = 1
	// StatusVerified marks a session linked to an application account.
	StatusVerified VerificationStatus = 2
)

// ErrNotFound is returned when no session matches the lookup.
var ErrNotFound = errors.New("session: not found")

// ChatSession is one row per (chat, remote user) pair. It is never deleted,
// only advanced or reset. AccountID is non-nil iff Status is StatusVerified;
// the verification hand-off is the only writer of that pair.
type ChatSession struct {
	ID                 int64              `db:"id"`
	ChatID             int64              `db:"chat_id"`
	UserID             int64              `db:"user_id"`
	AccountID          *int64             `db:"account_id"`
	Status             VerificationStatus `db:"status"`
	VerificationCode   string             `db:"verification_code"`
	SelectedCategoryID *int64             `db:"selected_category_id"`
	Choosing           bool               `db:"choosing"`
	CreatedAt          time.Time          `db:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at"`
}

// Verified reports whether the session is linked to an account.
func (s *ChatSession) Verified() bool {
	return s != nil && s.Status == StatusVerified && s.AccountID != nil
}

// Clone returns a copy safe to mutate without touching the original.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.AccountID != nil {
		v := *s.AccountID
		c.AccountID = &v
	}
	if s.SelectedCategoryID != nil {
		v := *s.SelectedCategoryID
		c.SelectedCategoryID = &v
	}
	return &c
}

// Store owns the chat session lifecycle. Implementations must keep
// ConsumeVerificationCode atomic: the account link, the status flip and the
// code reset happen together or not at all.
type Store interface {
	// GetOrCreate returns the session for the pair, creating an empty
	// not-verified one when missing. The second result reports creation.
	GetOrCreate(ctx context.Context, chatID, userID int64) (*ChatSession, bool, error)
	// Find returns the session or ErrNotFound.
	Find(ctx context.Context, chatID, userID int64) (*ChatSession, error)
	// Save persists mutated session fields.
	Save(ctx context.Context, s *ChatSession) error
	// ConsumeVerificationCode links the session holding the code to the
	// account, marks it verified and clears the code. A missing or already
	// consumed code yields ErrNotFound.
	ConsumeVerificationCode(ctx context.Context, code string, accountID int64) (*ChatSession, error)
}

// OffsetStore persists the dispatcher's poll offset between restarts.
type OffsetStore interface {
	// LoadOffset returns the last durably stored offset, 0 when none.
	LoadOffset(ctx context.Context) (int, error)
	// SaveOffset stores the offset after a fully processed batch.
	SaveOffset(ctx context.Context, offset int) error
}
