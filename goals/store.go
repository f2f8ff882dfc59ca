// Package goals exposes the narrow read/write surface the bot needs over
// the goals domain: active goals, writable categories and goal creation.
// The full CRUD API lives in the web application sharing the database.
package goals

import (
	"context"
	"errors"
	"fmt"
)

// Board participant roles, matching the web application's schema.
const (
	RoleOwner  = 1
	RoleWriter = 2
	RoleReader = 3
)

// Goal statuses, matching the web application's schema.
const (
	StatusToDo       = 1
	StatusInProgress = 2
	StatusDone       = 3
	StatusArchived   = 4
)

// PriorityMedium is the default priority for goals created from the bot.
const PriorityMedium = 2

var (
	// ErrNotFound indicates a referenced board/category/goal does not exist
	// or is soft deleted.
	ErrNotFound = errors.New("goals: not found")
	// ErrForbidden indicates the account lacks a writer or owner role.
	ErrForbidden = errors.New("goals: forbidden")
)

// Goal is the projection the bot shows in /goals listings.
type Goal struct {
	ID    int64  `db:"id"`
	Title string `db:"title"`
}

// Category is a writable goal category offered during /create.
type Category struct {
	ID      int64  `db:"id"`
	BoardID int64  `db:"board_id"`
	Title   string `db:"title"`
}

// CreatedGoal carries the identifiers needed to deep link a new goal.
type CreatedGoal struct {
	BoardID    int64
	CategoryID int64
	GoalID     int64
}

// Store is the domain collaborator boundary consumed by the FSM engine.
type Store interface {
	// ListActiveGoals returns non-archived goals on live boards/categories
	// the account participates in.
	ListActiveGoals(ctx context.Context, accountID int64) ([]Goal, error)
	// ListWritableCategories returns categories on live boards where the
	// account holds an owner or writer role.
	ListWritableCategories(ctx context.Context, accountID int64) ([]Category, error)
	// CreateGoal creates a goal in the category on behalf of the account.
	CreateGoal(ctx context.Context, accountID, categoryID int64, title string) (CreatedGoal, error)
}

// GoalLink builds the web application deep link for a created goal.
func GoalLink(baseURL string, g CreatedGoal) string {
	return fmt.Sprintf("%s/boards/%d/categories/%d/goals?goal=%d", baseURL, g.BoardID, g.CategoryID, g.GoalID)
}
