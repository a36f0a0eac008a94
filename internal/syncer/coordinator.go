// Package syncer reconciles drafts in the local cache with the remote backend.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/draftsync/internal/backend"
	"github.com/debemdeboas/draftsync/internal/cache"
	"github.com/debemdeboas/draftsync/internal/metrics"
	"github.com/debemdeboas/draftsync/internal/model"
)

type Outcome int

const (
	// Clean means there was nothing to send: no local entry, or not dirty.
	Clean Outcome = iota
	Saved
	Deleted
	Failed
	// Busy means a sync for the same key was already running.
	Busy
)

func (o Outcome) String() string {
	switch o {
	case Clean:
		return "clean"
	case Saved:
		return "saved"
	case Deleted:
		return "deleted"
	case Failed:
		return "failed"
	case Busy:
		return "busy"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Report maps every key touched by SyncPending to its outcome.
type Report map[model.ConversationKey]Outcome

func (r Report) Count(o Outcome) int {
	n := 0
	for _, got := range r {
		if got == o {
			n++
		}
	}
	return n
}

var syncLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	syncLogger = l
}

type Coordinator struct {
	cache   *cache.DraftCache
	backend backend.Backend

	mu       sync.Mutex
	inFlight map[model.ConversationKey]struct{}
}

func New(c *cache.DraftCache, b backend.Backend) *Coordinator {
	return &Coordinator{
		cache:    c,
		backend:  b,
		inFlight: make(map[model.ConversationKey]struct{}),
	}
}

// Sync sends the local draft for key to the backend if it is dirty. Empty drafts are deleted
// remotely, others are saved as a full overwrite. On failure the draft stays dirty; retrying is
// up to the caller.
func (c *Coordinator) Sync(ctx context.Context, key model.ConversationKey) (Outcome, error) {
	return c.run(ctx, key, true)
}

// Push is Sync without the dirty check. It is used for drafts found locally when a
// conversation is opened.
func (c *Coordinator) Push(ctx context.Context, key model.ConversationKey) (Outcome, error) {
	return c.run(ctx, key, false)
}

// Clear empties the draft for key and deletes it remotely. It is what sending a reply or
// discarding a draft does. The empty draft stays in the cache, dirty, until the delete
// succeeds, so a failed or busy clear is retried by the next sync of key.
func (c *Coordinator) Clear(ctx context.Context, key model.ConversationKey) (Outcome, error) {
	c.cache.Set(key, "", model.DraftMeta{})

	outcome, err := c.run(ctx, key, true)
	if outcome != Deleted {
		syncLogger.Warn().
			Err(err).
			Str("key", string(key)).
			Stringer("outcome", outcome).
			Msg("Draft not cleared remotely, keeping it for retry")
		return outcome, err
	}

	// An edit made while the delete was in flight keeps the entry dirty.
	if e, ok := c.cache.Entry(key); ok && !e.Dirty {
		c.cache.Remove(key)
	}
	syncLogger.Debug().Str("key", string(key)).Msg("Cleared draft")
	return Deleted, nil
}

// SyncPending syncs every dirty entry, oldest first. Failures do not stop the run; they are
// joined into the returned error.
func (c *Coordinator) SyncPending(ctx context.Context) (Report, error) {
	report := make(Report)
	var errs []error

	for _, e := range c.cache.Pending() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		outcome, err := c.Sync(ctx, e.Key)
		report[e.Key] = outcome
		if err != nil {
			errs = append(errs, err)
		}
	}

	syncLogger.Info().
		Int("saved", report.Count(Saved)).
		Int("deleted", report.Count(Deleted)).
		Int("failed", report.Count(Failed)).
		Msg("Synced pending drafts")

	return report, errors.Join(errs...)
}

func (c *Coordinator) run(ctx context.Context, key model.ConversationKey, onlyDirty bool) (Outcome, error) {
	if !c.acquire(key) {
		syncLogger.Debug().Str("key", string(key)).Msg("Sync already running")
		metrics.SyncOutcomes.WithLabelValues(Busy.String()).Inc()
		return Busy, nil
	}
	defer c.release(key)

	entry, ok := c.cache.Entry(key)
	if !ok || (onlyDirty && !entry.Dirty) {
		metrics.SyncOutcomes.WithLabelValues(Clean.String()).Inc()
		return Clean, nil
	}

	outcome, err := c.reconcile(ctx, entry)
	metrics.SyncOutcomes.WithLabelValues(outcome.String()).Inc()
	if err != nil {
		syncLogger.Warn().
			Err(err).
			Str("key", string(key)).
			Msg("Draft sync failed, keeping it dirty")
		return outcome, err
	}

	if !c.cache.MarkClean(key, entry.Revision) {
		syncLogger.Debug().Str("key", string(key)).Msg("Draft changed during sync, leaving it dirty")
	}
	return outcome, nil
}

func (c *Coordinator) reconcile(ctx context.Context, entry cache.Entry) (Outcome, error) {
	if entry.IsEmpty() {
		err := c.backend.DeleteDraft(ctx, entry.Key)
		if err != nil && !errors.Is(err, backend.ErrNotFound) {
			return Failed, fmt.Errorf("error deleting draft %s: %w", entry.Key, err)
		}
		syncLogger.Debug().Str("key", string(entry.Key)).Msg("Deleted empty draft")
		return Deleted, nil
	}

	if err := c.backend.SaveDraft(ctx, entry.Key, entry.Content, entry.Meta); err != nil {
		return Failed, fmt.Errorf("error saving draft %s: %w", entry.Key, err)
	}
	syncLogger.Debug().Str("key", string(entry.Key)).Msg("Saved draft")
	return Saved, nil
}

func (c *Coordinator) acquire(key model.ConversationKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.inFlight[key]; ok {
		return false
	}
	c.inFlight[key] = struct{}{}
	return true
}

func (c *Coordinator) release(key model.ConversationKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, key)
}
