package verify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mrodionov/todobot/bot/session"
)

func newTestServer(t *testing.T, store *session.MemoryStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Router(NewService(store), nil))
	t.Cleanup(srv.Close)
	return srv
}

func patchVerify(t *testing.T, srv *httptest.Server, accountID, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPatch, srv.URL+"/api/bot/verify", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		req.Header.Set("X-Account-ID", accountID)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestVerifyEndpointSuccess(t *testing.T) {
	store := session.NewMemoryStore()
	seedPendingSession(t, store, "abcDEF1234")
	srv := newTestServer(t, store)

	resp := patchVerify(t, srv, "7", `{"verification_code": "abcDEF1234"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["verification_code"] != "Success verification" {
		t.Fatalf("body = %v", body)
	}

	sess, err := store.Find(context.Background(), 100, 200)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !sess.Verified() || *sess.AccountID != 7 {
		t.Fatalf("session = %+v, want verified account 7", sess)
	}
}

func TestVerifyEndpointInvalidCode(t *testing.T) {
	store := session.NewMemoryStore()
	seedPendingSession(t, store, "abcDEF1234")
	srv := newTestServer(t, store)

	for _, body := range []string{
		`{"verification_code": "wrong"}`,
		`{"verification_code": ""}`,
		`{}`,
		`not json`,
	} {
		resp := patchVerify(t, srv, "7", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
		var parsed map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			t.Fatalf("body %q: decode: %v", body, err)
		}
		if parsed["verification_code"] != "Invalid verification code" {
			t.Fatalf("body %q: response = %v", body, parsed)
		}
	}
}

func TestVerifyEndpointRequiresAuth(t *testing.T) {
	store := session.NewMemoryStore()
	seedPendingSession(t, store, "abcDEF1234")
	srv := newTestServer(t, store)

	for _, account := range []string{"", "0", "-2", "abc"} {
		resp := patchVerify(t, srv, account, `{"verification_code": "abcDEF1234"}`)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("account %q: status = %d, want 401", account, resp.StatusCode)
		}
	}

	// The code must survive failed auth attempts.
	sess, err := store.Find(context.Background(), 100, 200)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if sess.Verified() {
		t.Fatal("session verified without auth")
	}
}

func TestVerifyEndpointCodeIsSingleUse(t *testing.T) {
	store := session.NewMemoryStore()
	seedPendingSession(t, store, "abcDEF1234")
	srv := newTestServer(t, store)

	if resp := patchVerify(t, srv, "7", `{"verification_code": "abcDEF1234"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("first: status = %d", resp.StatusCode)
	}
	if resp := patchVerify(t, srv, "8", `{"verification_code": "abcDEF1234"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("replay: status = %d, want 400", resp.StatusCode)
	}
}
