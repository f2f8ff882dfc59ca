package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/mrodionov/todobot/bot/session"
)

func seedPendingSession(t *testing.T, store *session.MemoryStore, code string) *session.ChatSession {
	t.Helper()
	ctx := context.Background()

	sess, _, err := store.GetOrCreate(ctx, 100, 200)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	sess.VerificationCode = code
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("seed save: %v", err)
	}
	return sess
}

func TestConsumeLinksAccount(t *testing.T) {
	store := session.NewMemoryStore()
	seedPendingSession(t, store, "abcDEF1234")
	svc := NewService(store)

	sess, err := svc.Consume(context.Background(), 7, "abcDEF1234")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !sess.Verified() || *sess.AccountID != 7 {
		t.Fatalf("session = %+v, want verified account 7", sess)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	store := session.NewMemoryStore()
	seedPendingSession(t, store, "abcDEF1234")
	svc := NewService(store)

	if _, err := svc.Consume(context.Background(), 7, "abcDEF1234"); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := svc.Consume(context.Background(), 8, "abcDEF1234"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("second consume: err = %v, want ErrInvalidCode", err)
	}
}

func TestConsumeRejectsUnknownAndEmptyCodes(t *testing.T) {
	store := session.NewMemoryStore()
	seedPendingSession(t, store, "abcDEF1234")
	svc := NewService(store)

	for _, code := range []string{"wrong", "", "   "} {
		if _, err := svc.Consume(context.Background(), 7, code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("code %q: err = %v, want ErrInvalidCode", code, err)
		}
	}
}

func TestConsumeTrimsCode(t *testing.T) {
	store := session.NewMemoryStore()
	seedPendingSession(t, store, "abcDEF1234")
	svc := NewService(store)

	if _, err := svc.Consume(context.Background(), 7, "  abcDEF1234  "); err != nil {
		t.Fatalf("consume with padding: %v", err)
	}
}
