package transport

import (
	"errors"
	"testing"
)

func TestParseUpdates(t *testing.T) {
	raw := []byte(`{
		"ok": true,
		"result": [
			{"update_id": 12, "message": {"message_id": 2, "text": "/goals",
				"chat": {"id": 100, "type": "private"},
				"from": {"id": 200, "is_bot": false, "first_name": "m"}}},
			{"update_id": 10, "message": {"message_id": 1, "text": "/start",
				"chat": {"id": 100, "type": "private"},
				"from": {"id": 200, "is_bot": false, "first_name": "m"}}},
			{"update_id": 11, "edited_message": {"message_id": 1, "text": "x",
				"chat": {"id": 100, "type": "private"}}}
		]
	}`)

	updates, err := parseUpdates(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(updates) != 3 {
		t.Fatalf("len = %d, want 3", len(updates))
	}

	// Sorted ascending by update id.
	for i, wantID := range []int{10, 11, 12} {
		if updates[i].ID != wantID {
			t.Fatalf("updates[%d].ID = %d, want %d", i, updates[i].ID, wantID)
		}
	}

	if updates[0].Text != "/start" || updates[0].ChatID != 100 || updates[0].UserID != 200 {
		t.Fatalf("first update = %+v", updates[0])
	}

	// Updates without a message keep their id but carry no payload, so the
	// offset still advances past them.
	if updates[1].Text != "" || updates[1].ChatID != 0 {
		t.Fatalf("message-less update = %+v", updates[1])
	}
}

func TestParseUpdatesBadJSON(t *testing.T) {
	if _, err := parseUpdates([]byte(`{"result": "nope"}`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Op: "getUpdates", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("Unwrap lost the inner error")
	}
}

func TestSanitizeError(t *testing.T) {
	err := errors.New(`Get "https://api.telegram.org/bot12345:AAbbCCdd_ee/getUpdates": timeout`)
	got := SanitizeError(err)
	want := `Get "https://api.telegram.org/bot<redacted>/getUpdates": timeout`
	if got != want {
		t.Fatalf("sanitized = %q, want %q", got, want)
	}
	if SanitizeError(nil) != "" {
		t.Fatal("nil error must sanitize to empty string")
	}
}
