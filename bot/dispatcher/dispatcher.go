// Package dispatcher drives the bot: it polls the messaging transport,
// resolves sessions, runs the FSM engine and sends replies, strictly in
// update order.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/mrodionov/todobot/bot/fsm"
	"github.com/mrodionov/todobot/bot/session"
	"github.com/mrodionov/todobot/bot/transport"
	"github.com/mrodionov/todobot/core/logger"
)

const (
	defaultPollBackoff = 2 * time.Second
	maxPollBackoff     = 30 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	Transport transport.Client
	Sessions  session.Store
	Offsets   session.OffsetStore
	Engine    *fsm.Engine
	// PollRetryBackoff is the base delay after a failed poll; it grows
	// linearly per consecutive failure up to a cap.
	PollRetryBackoff time.Duration
}

// Dispatcher owns the sequential poll/process loop. One instance must not
// be run concurrently: the strictly sequential loop is what guarantees the
// per-chat ordering the FSM depends on.
type Dispatcher struct {
	transport transport.Client
	sessions  session.Store
	offsets   session.OffsetStore
	engine    *fsm.Engine
	backoff   time.Duration
}

// New builds a dispatcher; zeroed options get defaults.
func New(opts Options) *Dispatcher {
	backoff := opts.PollRetryBackoff
	if backoff <= 0 {
		backoff = defaultPollBackoff
	}
	return &Dispatcher{
		transport: opts.Transport,
		sessions:  opts.Sessions,
		offsets:   opts.Offsets,
		engine:    opts.Engine,
		backoff:   backoff,
	}
}

// Run polls until ctx is cancelled. In-flight updates of the current batch
// are always finished before returning; a new poll is never started after
// cancellation. Transport failures back off and retry with the offset
// unchanged; nothing inside the loop is fatal.
func (d *Dispatcher) Run(ctx context.Context) error {
	offset, err := d.offsets.LoadOffset(ctx)
	if err != nil {
		return err
	}
	logger.DISPATCH.LogAttrs(ctx, slog.LevelInfo, "loop started",
		slog.String("event", "loop.start"),
		slog.Int("offset", offset),
	)

	failures := 0
	for {
		if ctx.Err() != nil {
			logger.DISPATCH.LogAttrs(ctx, slog.LevelInfo, "loop stopped",
				slog.String("event", "loop.stop"),
				slog.Int("offset", offset),
			)
			return nil
		}

		batch, err := d.transport.Poll(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			failures++
			delay := d.backoff * time.Duration(failures)
			if delay > maxPollBackoff {
				delay = maxPollBackoff
			}
			logger.DISPATCH.LogAttrs(ctx, slog.LevelWarn, "poll failed",
				slog.String("event", "poll.fail"),
				slog.Int("offset", offset),
				slog.Int("attempts", failures),
				slog.Duration("backoff", delay),
				slog.String("err", transport.SanitizeError(err)),
			)
			sleep(ctx, delay)
			continue
		}
		failures = 0

		if len(batch) == 0 {
			continue
		}

		for _, upd := range batch {
			d.handle(ctx, upd)
			if upd.ID >= offset {
				offset = upd.ID + 1
			}
		}

		if err := d.offsets.SaveOffset(ctx, offset); err != nil {
			// Re-delivery after restart is tolerated; keep going.
			logger.DISPATCH.LogAttrs(ctx, slog.LevelWarn, "offset save failed",
				slog.String("event", "offset.fail"),
				slog.Int("offset", offset),
				slog.String("err", err.Error()),
			)
		}
		logger.DISPATCH.LogAttrs(ctx, slog.LevelDebug, "batch processed",
			slog.String("event", "batch.done"),
			slog.Int("batch", len(batch)),
			slog.Int("offset", offset),
		)
	}
}

// handle processes one update. Every failure is logged and swallowed so
// the loop survives any single update.
func (d *Dispatcher) handle(ctx context.Context, upd transport.Update) {
	if upd.Text == "" || upd.ChatID == 0 {
		return
	}

	start := time.Now()
	rid := logger.BuildRID(upd.ID, upd.ChatID, upd.UserID)
	uctx := logger.WithRID(ctx, rid)
	uctx = logger.WithUpdateMeta(uctx, upd.ID, upd.UserID, upd.ChatID)

	if logger.ShouldSampleDebug() {
		logger.Debug(uctx, "bot.dispatch", "update.received",
			slog.String("payload", logger.SanitizeLimit(upd.Text, 256)),
		)
	}

	sess, err := d.sessions.Find(uctx, upd.ChatID, upd.UserID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		logger.Error(uctx, "bot.dispatch", "session.lookup.fail",
			slog.String("err", err.Error()),
		)
		return
	}

	out, err := d.engine.Transition(uctx, sess, upd.Text)
	if err != nil {
		logger.Error(uctx, "bot.dispatch", "transition.fail",
			slog.String("err", err.Error()),
		)
		return
	}

	if out.CreateSession {
		if _, _, err := d.sessions.GetOrCreate(uctx, upd.ChatID, upd.UserID); err != nil {
			logger.Error(uctx, "bot.dispatch", "session.create.fail",
				slog.String("err", err.Error()),
			)
			return
		}
	} else if out.Session != nil {
		if err := d.sessions.Save(uctx, out.Session); err != nil {
			logger.Error(uctx, "bot.dispatch", "session.save.fail",
				slog.String("err", err.Error()),
			)
			return
		}
	}

	sent := 0
	for _, reply := range out.Replies {
		if err := d.transport.Send(uctx, upd.ChatID, reply); err != nil {
			// A lost reply must never be silent; the user can repeat the
			// command, the session state is already persisted.
			logger.Error(uctx, "bot.dispatch", "send.fail",
				slog.String("err", transport.SanitizeError(err)),
			)
			continue
		}
		sent++
	}

	logger.Info(uctx, "bot.dispatch", "update.handled",
		slog.String("status", logger.Status(nil)),
		slog.String("state", string(out.From)),
		slog.String("next_state", string(out.To)),
		slog.String("effect", string(out.Effect)),
		slog.Int("replies", sent),
		slog.Duration("duration", logger.Took(start)),
	)
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
