package verify

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mrodionov/todobot/core/logger"
)

// AccountResolver maps an incoming request to the authenticated account.
// It returns the account id or an error when the request carries no valid
// identity.
type AccountResolver func(r *http.Request) (int64, error)

var errUnauthorized = errors.New("unauthorized")

// HeaderAccountResolver reads the account id from the X-Account-ID header.
// It stands in for the session middleware of the main web application,
// which terminates auth before proxying to this service.
func HeaderAccountResolver(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("X-Account-ID"))
	if raw == "" {
		return 0, errUnauthorized
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errUnauthorized
	}
	return id, nil
}

type verifyRequest struct {
	VerificationCode string `json:"verification_code"`
}

type verifyResponse struct {
	VerificationCode string `json:"verification_code"`
}

// Router builds the HTTP surface of the verification service.
func Router(svc *Service, resolve AccountResolver) http.Handler {
	if resolve == nil {
		resolve = HeaderAccountResolver
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Patch("/api/bot/verify", handleVerify(svc, resolve))
	return r
}

func handleVerify(svc *Service, resolve AccountResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		accountID, err := resolve(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
			return
		}

		var req verifyRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"verification_code": "Invalid verification code"})
			return
		}

		if _, err := svc.Consume(ctx, accountID, req.VerificationCode); err != nil {
			if errors.Is(err, ErrInvalidCode) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"verification_code": "Invalid verification code"})
				return
			}
			logger.VERIFY.LogAttrs(ctx, slog.LevelError, "verify failed",
				slog.String("event", "verify.fail"),
				slog.Int64("account_id", accountID),
				slog.String("err", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Internal error"})
			return
		}

		writeJSON(w, http.StatusOK, verifyResponse{VerificationCode: "Success verification"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
