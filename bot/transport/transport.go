// Package transport wraps the Telegram Bot API primitives the bot needs:
// a long-poll updates fetch keyed by offset and a plain text send.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollSeconds = 25

// Update is the inbound message unit consumed by the dispatcher.
// Updates without a usable text message keep their ID so the poll
// offset still advances past them.
type Update struct {
	ID     int
	ChatID int64
	UserID int64
	Text   string
}

// Error wraps a failure of a Telegram API call.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("telegram %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client is the narrow messaging contract consumed by the dispatcher.
type Client interface {
	// Poll returns updates with ID >= offset, ordered by ID ascending.
	// It blocks up to the configured long-poll timeout.
	Poll(ctx context.Context, offset int) ([]Update, error)
	// Send delivers text to the chat.
	Send(ctx context.Context, chatID int64, text string) error
}

// Telegram implements Client on top of the telebot API bindings.
type Telegram struct {
	bot     *tele.Bot
	timeout time.Duration
}

// Options configures the Telegram client.
type Options struct {
	Token                  string
	LongPollTimeoutSeconds int
}

// New builds a Telegram client and validates the token against the API.
func New(opts Options) (*Telegram, error) {
	timeoutSec := opts.LongPollTimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = defaultLongPollSeconds
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  opts.Token,
		Client: buildHTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	return &Telegram{
		bot:     bot,
		timeout: time.Duration(timeoutSec) * time.Second,
	}, nil
}

// NewWithBot wraps an existing bot instance; used by tests with offline bots.
func NewWithBot(bot *tele.Bot, timeout time.Duration) *Telegram {
	if timeout <= 0 {
		timeout = defaultLongPollSeconds * time.Second
	}
	return &Telegram{bot: bot, timeout: timeout}
}

// Poll fetches the next batch of updates starting at offset.
func (t *Telegram) Poll(ctx context.Context, offset int) ([]Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := map[string]string{
		"offset":          strconv.Itoa(offset),
		"timeout":         strconv.Itoa(int(t.timeout / time.Second)),
		"allowed_updates": `["message"]`,
	}

	data, err := t.bot.Raw("getUpdates", params)
	if err != nil {
		return nil, &Error{Op: "getUpdates", Err: err}
	}
	return parseUpdates(data)
}

const maxFloodWait = 30 * time.Second

// Send delivers a plain text message to the chat. A flood-control rejection
// is waited out once for the period the API asks for.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(tele.ChatID(chatID), text)
	if wait, ok := floodWait(err); ok && wait <= maxFloodWait {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		_, err = t.bot.Send(tele.ChatID(chatID), text)
	}
	if err != nil {
		return &Error{Op: "sendMessage", Err: err}
	}
	return nil
}

func floodWait(err error) (time.Duration, bool) {
	var flood tele.FloodError
	if !errors.As(err, &flood) || flood.RetryAfter <= 0 {
		return 0, false
	}
	return time.Duration(flood.RetryAfter) * time.Second, true
}

func parseUpdates(data []byte) ([]Update, error) {
	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &Error{Op: "getUpdates", Err: fmt.Errorf("parse response: %w", err)}
	}

	updates := make([]Update, 0, len(resp.Result))
	for _, upd := range resp.Result {
		u := Update{ID: upd.ID}
		if msg := upd.Message; msg != nil && msg.Chat != nil && msg.Sender != nil {
			u.ChatID = msg.Chat.ID
			u.UserID = msg.Sender.ID
			u.Text = msg.Text
		}
		updates = append(updates, u)
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	return updates, nil
}

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// SanitizeError prevents accidental leakage of bot tokens in logs.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
