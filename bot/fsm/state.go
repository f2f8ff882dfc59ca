// Package fsm implements the conversational state machine of the bot.
// The state is never stored: it is derived from the persisted chat session
// on every update, so the persisted record is the single source of truth.
package fsm

import "github.com/mrodionov/todobot/bot/session"

// State identifies a derived conversation step.
type State string

const (
	// StateUnregistered means no session exists for the chat yet.
	StateUnregistered State = "unregistered"
	// StatePendingVerification means the session exists but is not linked
	// to an application account.
	StatePendingVerification State = "pending_verification"
	// StateMenu is the default state of a verified session.
	StateMenu State = "menu"
	// StateChoosingCategory means the user was shown the category list
	// after /create and a category name is expected.
	StateChoosingCategory State = "choosing_category"
	// StateComposingGoal means a category is selected and the next text
	// becomes a goal title.
	StateComposingGoal State = "composing_goal"
)

// Derive computes the conversation state from session fields alone.
func Derive(s *session.ChatSession) State {
	switch {
	case s == nil:
		return StateUnregistered
	case !s.Verified():
		return StatePendingVerification
	case s.SelectedCategoryID != nil:
		return StateComposingGoal
	case s.Choosing:
		return StateChoosingCategory
	default:
		return StateMenu
	}
}
