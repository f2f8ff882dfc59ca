package session

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreGetOrCreate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess, created, err := store.GetOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get_or_create: %v", err)
	}
	if !created {
		t.Fatal("expected creation on first call")
	}
	if sess.Status != StatusNotVerified {
		t.Fatalf("status = %d, want not verified", sess.Status)
	}

	again, created, err := store.GetOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get_or_create: %v", err)
	}
	if created {
		t.Fatal("second call must not create")
	}
	if again.ID != sess.ID {
		t.Fatalf("id = %d, want %d", again.ID, sess.ID)
	}
}

func TestMemoryStoreFindMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Find(context.Background(), 9, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSave(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess, _, err := store.GetOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get_or_create: %v", err)
	}

	sess.VerificationCode = "abcDEF1234"
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Find(ctx, 1, 2)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.VerificationCode != "abcDEF1234" {
		t.Fatalf("code = %q", got.VerificationCode)
	}

	store.Delete(1, 2)
	if err := store.Save(ctx, sess); !errors.Is(err, ErrNotFound) {
		t.Fatalf("save after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreConsumeVerificationCode(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess, _, err := store.GetOrCreate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get_or_create: %v", err)
	}
	sess.VerificationCode = "abcDEF1234"
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	verified, err := store.ConsumeVerificationCode(ctx, "abcDEF1234", 77)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !verified.Verified() {
		t.Fatal("session not verified after consume")
	}
	if verified.AccountID == nil || *verified.AccountID != 77 {
		t.Fatalf("account = %v, want 77", verified.AccountID)
	}
	if verified.VerificationCode != "" {
		t.Fatalf("code not cleared: %q", verified.VerificationCode)
	}

	// The code is single use.
	if _, err := store.ConsumeVerificationCode(ctx, "abcDEF1234", 78); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume: err = %v, want ErrNotFound", err)
	}

	// An empty code never matches cleared sessions.
	if _, err := store.ConsumeVerificationCode(ctx, "", 78); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty code: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreOffsetMonotonic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveOffset(ctx, 10); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveOffset(ctx, 5); err != nil {
		t.Fatalf("save: %v", err)
	}
	offset, err := store.LoadOffset(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if offset != 10 {
		t.Fatalf("offset = %d, want 10", offset)
	}
}

func TestCloneIsolation(t *testing.T) {
	account := int64(1)
	cat := int64(2)
	orig := &ChatSession{AccountID: &account, SelectedCategoryID: &cat}

	c := orig.Clone()
	*c.AccountID = 9
	*c.SelectedCategoryID = 9

	if *orig.AccountID != 1 || *orig.SelectedCategoryID != 2 {
		t.Fatal("clone shares pointers with the original")
	}
}
