package goals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"log/slog"

	"github.com/mrodionov/todobot/core/logger"
)

// PostgresStore implements Store over the database shared with the web app.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wires the store to the given connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListActiveGoals returns non-archived goals visible to the account.
func (s *PostgresStore) ListActiveGoals(ctx context.Context, accountID int64) ([]Goal, error) {
	start := time.Now()
	var out []Goal
	err := s.db.SelectContext(ctx, &out, `
		SELECT g.id, g.title
		FROM goals g
		JOIN goal_categories c ON c.id = g.category_id
		JOIN boards b ON b.id = c.board_id
		JOIN board_participants p ON p.board_id = b.id
		WHERE p.user_id = $1
		  AND NOT b.is_deleted
		  AND NOT c.is_deleted
		  AND g.status <> $2
		ORDER BY g.id`,
		accountID, StatusArchived,
	)
	if err != nil {
		return nil, fmt.Errorf("goals list: %w", err)
	}
	logger.SVCGoals.LogAttrs(ctx, slog.LevelDebug, "goals.listed",
		slog.String("event", "goals.list"),
		slog.Int64("account_id", accountID),
		slog.Int("count", len(out)),
		slog.Duration("duration", logger.Took(start)),
	)
	return out, nil
}

// ListWritableCategories returns categories where the account may create goals.
func (s *PostgresStore) ListWritableCategories(ctx context.Context, accountID int64) ([]Category, error) {
	start := time.Now()
	var out []Category
	err := s.db.SelectContext(ctx, &out, `
		SELECT c.id, c.board_id, c.title
		FROM goal_categories c
		JOIN boards b ON b.id = c.board_id
		JOIN board_participants p ON p.board_id = b.id
		WHERE p.user_id = $1
		  AND p.role IN ($2, $3)
		  AND NOT b.is_deleted
		  AND NOT c.is_deleted
		ORDER BY c.id`,
		accountID, RoleOwner, RoleWriter,
	)
	if err != nil {
		return nil, fmt.Errorf("categories list: %w", err)
	}
	logger.SVCGoals.LogAttrs(ctx, slog.LevelDebug, "categories.listed",
		slog.String("event", "categories.list"),
		slog.Int64("account_id", accountID),
		slog.Int("count", len(out)),
		slog.Duration("duration", logger.Took(start)),
	)
	return out, nil
}

// CreateGoal verifies the role on the category's board and inserts the goal.
func (s *PostgresStore) CreateGoal(ctx context.Context, accountID, categoryID int64, title string) (CreatedGoal, error) {
	start := time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return CreatedGoal{}, fmt.Errorf("goal create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var boardID int64
	err = tx.GetContext(ctx, &boardID, `
		SELECT b.id
		FROM goal_categories c
		JOIN boards b ON b.id = c.board_id
		WHERE c.id = $1 AND NOT c.is_deleted AND NOT b.is_deleted`,
		categoryID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return CreatedGoal{}, ErrNotFound
	}
	if err != nil {
		return CreatedGoal{}, fmt.Errorf("goal create: resolve category: %w", err)
	}

	var role int
	err = tx.GetContext(ctx, &role, `
		SELECT role FROM board_participants
		WHERE board_id = $1 AND user_id = $2`,
		boardID, accountID,
	)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && role != RoleOwner && role != RoleWriter) {
		return CreatedGoal{}, ErrForbidden
	}
	if err != nil {
		return CreatedGoal{}, fmt.Errorf("goal create: check role: %w", err)
	}

	var goalID int64
	err = tx.GetContext(ctx, &goalID, `
		INSERT INTO goals (user_id, category_id, title, status, priority)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		accountID, categoryID, title, StatusToDo, PriorityMedium,
	)
	if err != nil {
		// The category can be hard deleted between the role check and the
		// insert; the FK violation is a domain outcome, not a fault.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return CreatedGoal{}, ErrNotFound
		}
		return CreatedGoal{}, fmt.Errorf("goal create: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return CreatedGoal{}, fmt.Errorf("goal create: commit: %w", err)
	}

	created := CreatedGoal{BoardID: boardID, CategoryID: categoryID, GoalID: goalID}
	logger.SVCGoals.LogAttrs(ctx, slog.LevelInfo, "goal.created",
		slog.String("event", "goal.create"),
		slog.Int64("account_id", accountID),
		slog.Int64("board_id", created.BoardID),
		slog.Int64("category_id", created.CategoryID),
		slog.Int64("goal_id", created.GoalID),
		slog.Duration("duration", logger.Took(start)),
	)
	return created, nil
}
