package telegram

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// UpdateSource is the slice of the client the poller needs; tests inject a
// fake that yields scripted updates.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Poller runs the long-poll loop as a supervised task: a transport failure
// is logged and retried after a fixed backoff, and never touches the
// handler or any conversation state. Handler panics are contained per
// update so one bad message cannot take the loop down.
type Poller struct {
	Source  UpdateSource
	Timeout time.Duration
	Backoff time.Duration
	Handler func(ctx context.Context, u Update)
	Log     zerolog.Logger
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := p.Source.GetUpdates(ctx, offset, p.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.Log.Error().Err(err).Dur("backoff", p.Backoff).Msg("poll failed, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.Backoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.dispatch(ctx, u)
		}
	}
}

// dispatch invokes the handler with a per-update panic barrier.
func (p *Poller) dispatch(ctx context.Context, u Update) {
	defer func() {
		if rec := recover(); rec != nil {
			p.Log.Error().Interface("panic", rec).Int64("update_id", u.UpdateID).Msg("update handler panicked")
		}
	}()
	p.Handler(ctx, u)
}
