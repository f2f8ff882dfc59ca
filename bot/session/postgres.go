package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"log/slog"

	"github.com/mrodionov/todobot/core/logger"
)

// PostgresStore implements Store and OffsetStore over the shared database.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wires the store to the given connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, chat_id, user_id, account_id, status, verification_code, selected_category_id, choosing, created_at, updated_at`

// GetOrCreate returns the session for the pair, inserting a fresh
// not-verified row when none exists.
func (s *PostgresStore) GetOrCreate(ctx context.Context, chatID, userID int64) (*ChatSession, bool, error) {
	var sess ChatSession
	err := s.db.GetContext(ctx, &sess, `
		INSERT INTO bot_sessions (chat_id, user_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, user_id) DO NOTHING
		RETURNING `+sessionColumns,
		chatID, userID, StatusNotVerified,
	)
	if err == nil {
		logger.SVCSessions.LogAttrs(ctx, slog.LevelInfo, "session.created",
			slog.String("event", "session.create"),
			slog.Int64("chat_id", chatID),
			slog.Int64("user_id", userID),
		)
		return &sess, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("session get_or_create: %w", err)
	}

	existing, err := s.Find(ctx, chatID, userID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Find returns the session or ErrNotFound.
func (s *PostgresStore) Find(ctx context.Context, chatID, userID int64) (*ChatSession, error) {
	var sess ChatSession
	err := s.db.GetContext(ctx, &sess, `
		SELECT `+sessionColumns+`
		FROM bot_sessions
		WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session find: %w", err)
	}
	return &sess, nil
}

// Save persists the mutable session fields.
func (s *PostgresStore) Save(ctx context.Context, sess *ChatSession) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bot_sessions
		SET account_id = $2,
		    status = $3,
		    verification_code = $4,
		    selected_category_id = $5,
		    choosing = $6,
		    updated_at = now()
		WHERE id = $1`,
		sess.ID, sess.AccountID, sess.Status, sess.VerificationCode, sess.SelectedCategoryID, sess.Choosing,
	)
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeVerificationCode is a single atomic UPDATE; a concurrent consumer
// of the same code loses the race and observes ErrNotFound.
func (s *PostgresStore) ConsumeVerificationCode(ctx context.Context, code string, accountID int64) (*ChatSession, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	var sess ChatSession
	err := s.db.GetContext(ctx, &sess, `
		UPDATE bot_sessions
		SET account_id = $2,
		    status = $3,
		    verification_code = '',
		    updated_at = now()
		WHERE verification_code = $1 AND status = $4
		RETURNING `+sessionColumns,
		code, accountID, StatusVerified, StatusNotVerified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session consume code: %w", err)
	}
	logger.SVCSessions.LogAttrs(ctx, slog.LevelInfo, "session.verified",
		slog.String("event", "session.verify"),
		slog.Int64("chat_id", sess.ChatID),
		slog.Int64("user_id", sess.UserID),
		slog.Int64("account_id", accountID),
	)
	return &sess, nil
}

// LoadOffset returns the stored poll offset, 0 when the row is absent.
func (s *PostgresStore) LoadOffset(ctx context.Context) (int, error) {
	var offset int
	err := s.db.GetContext(ctx, &offset, `SELECT current_offset FROM bot_offsets WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("offset load: %w", err)
	}
	return offset, nil
}

// SaveOffset upserts the single offset row. The guard keeps the stored
// value monotonic even if an older writer ever raced ahead.
func (s *PostgresStore) SaveOffset(ctx context.Context, offset int) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_offsets (id, current_offset, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET current_offset = EXCLUDED.current_offset,
		    updated_at = now()
		WHERE bot_offsets.current_offset < EXCLUDED.current_offset`,
		offset,
	)
	if err != nil {
		return fmt.Errorf("offset save: %w", err)
	}
	logger.SVCSessions.LogAttrs(ctx, slog.LevelDebug, "offset.saved",
		slog.String("event", "offset.save"),
		slog.Int("offset", offset),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}
