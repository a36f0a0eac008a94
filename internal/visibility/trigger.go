// Package visibility forces a draft sync when the host stops being visible, so that work is
// not left sitting in a debounce window when the client is backgrounded or closed.
package visibility

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type State int

const (
	Unknown State = iota
	Visible
	Hidden
)

func (s State) String() string {
	switch s {
	case Visible:
		return "visible"
	case Hidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// Target is what gets flushed on hide. *watcher.Watcher satisfies it.
type Target interface {
	FlushAndSync(ctx context.Context) error
}

var visibilityLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	visibilityLogger = l
}

type Trigger struct {
	target Target

	mu   sync.Mutex
	last State
}

func New(target Target) *Trigger {
	return &Trigger{target: target}
}

// Handle records s and, on a transition into Hidden, flushes the target.
func (t *Trigger) Handle(ctx context.Context, s State) error {
	t.mu.Lock()
	prev := t.last
	t.last = s
	t.mu.Unlock()

	if s != Hidden || prev == Hidden {
		return nil
	}

	visibilityLogger.Debug().Stringer("from", prev).Msg("Host hidden, flushing draft")
	return t.target.FlushAndSync(ctx)
}

// Run handles states from signals until the channel closes or ctx is done.
// Flush failures are logged; the draft stays dirty for the next trigger.
func (t *Trigger) Run(ctx context.Context, signals <-chan State) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-signals:
			if !ok {
				return nil
			}
			if err := t.Handle(ctx, s); err != nil {
				visibilityLogger.Warn().Err(err).Msg("Error flushing draft on hide")
			}
		}
	}
}
