// Package watcher drives the draft engine from the active conversation. It owns the working
// content of the reply being composed, writes it into the local cache after a quiet period, and
// sequences save-old / load-new whenever the active conversation changes.
//
// Key changes, saves and syncs run in order on one event loop goroutine, which is also where
// backend I/O happens. The working content and meta sit behind a mutex instead, so editing and
// reading the reply never wait on the loop.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/draftsync/internal/backend"
	"github.com/debemdeboas/draftsync/internal/cache"
	"github.com/debemdeboas/draftsync/internal/debounce"
	"github.com/debemdeboas/draftsync/internal/metrics"
	"github.com/debemdeboas/draftsync/internal/model"
	"github.com/debemdeboas/draftsync/internal/syncer"
	"github.com/debemdeboas/draftsync/internal/validate"
)

const (
	DefaultSaveDebounce    = 250 * time.Millisecond
	DefaultGuardWindow     = 500 * time.Millisecond
	DefaultRemoteSyncDelay = 2 * time.Second
)

var (
	ErrClosed = errors.New("watcher: closed")

	ErrGuardWindow = errors.New("watcher: guard window must be longer than the save debounce")
)

var watcherLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	watcherLogger = l
}

type State int

const (
	Idle State = iota
	// Transitioning lasts from a key change until the guard window after it has elapsed.
	// Auto-saves that fire in this state are dropped.
	Transitioning
)

func (s State) String() string {
	if s == Transitioning {
		return "transitioning"
	}
	return "idle"
}

// MacroProvider reports the macro actions currently staged on the reply.
type MacroProvider interface {
	ReplyMacroActions() []model.MacroAction
}

// AttachmentProvider reports the attachments currently staged on the reply.
type AttachmentProvider interface {
	Attachments() []model.AttachmentRef
}

type Options struct {
	SaveDebounce time.Duration
	GuardWindow  time.Duration

	// RemoteSyncDelay is the quiet period after a local save before the draft is pushed to
	// the backend. Zero disables it; key changes and visibility still sync.
	RemoteSyncDelay time.Duration

	// Retention is the age past which Reset prunes local drafts. Zero keeps everything.
	Retention time.Duration

	Macros      MacroProvider
	Attachments AttachmentProvider
}

// Working is a snapshot of the reply being composed.
type Working struct {
	Key     model.ConversationKey
	Content string
	Meta    model.DraftMeta
	State   State

	// Dirty is set while there are edits not yet synced to the backend.
	Dirty bool
}

func (w Working) IsEmpty() bool {
	return model.Draft{Content: w.Content, Meta: w.Meta}.IsEmpty()
}

type Watcher struct {
	cache   *cache.DraftCache
	backend backend.Backend
	sync    *syncer.Coordinator
	opts    Options

	// ctx is used for syncs started by timers rather than by a caller.
	ctx    context.Context
	cancel context.CancelFunc

	ops       chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	save   *debounce.Debouncer
	remote *debounce.Debouncer
	guard  *debounce.Debouncer

	// mu guards the working state. The key and state only change on the loop.
	mu      sync.Mutex
	state   State
	key     model.ConversationKey
	content string
	meta    model.DraftMeta
	// pending is set when the working state has edits not yet written to the cache.
	pending bool
	// contentEdited and metaEdited record edits made since the last key change.
	contentEdited bool
	metaEdited    bool

	// Owned by the loop.
	loading bool
}

// New starts a watcher over c and b. Zero timings take their defaults.
func New(c *cache.DraftCache, b backend.Backend, opts Options) (*Watcher, error) {
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = DefaultSaveDebounce
	}
	if opts.GuardWindow <= 0 {
		opts.GuardWindow = DefaultGuardWindow
	}
	if opts.RemoteSyncDelay < 0 {
		opts.RemoteSyncDelay = 0
	}
	if opts.GuardWindow <= opts.SaveDebounce {
		return nil, fmt.Errorf("%w: guard %s, debounce %s", ErrGuardWindow, opts.GuardWindow, opts.SaveDebounce)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		cache:   c,
		backend: b,
		sync:    syncer.New(c, b),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		ops:     make(chan func(), 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		save:    debounce.New(opts.SaveDebounce),
		remote:  debounce.New(opts.RemoteSyncDelay),
		guard:   debounce.New(opts.GuardWindow),
	}
	go w.loop()
	return w, nil
}

// Coordinator returns the sync coordinator the watcher uses.
func (w *Watcher) Coordinator() *syncer.Coordinator {
	return w.sync
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	for {
		select {
		case fn := <-w.ops:
			fn()
		case <-w.done:
			return
		}
	}
}

// do runs fn on the loop and waits for it.
func (w *Watcher) do(ctx context.Context, fn func()) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	finished := make(chan struct{})
	select {
	case w.ops <- func() { defer close(finished); fn() }:
	case <-w.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-w.stopped:
		// The loop may have run fn just before stopping.
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// post queues fn on the loop without waiting.
func (w *Watcher) post(fn func()) {
	select {
	case w.ops <- fn:
	case <-w.done:
	}
}

// SetActiveKey switches the active conversation. The previous conversation's edits are saved
// and synced, then the new conversation's draft is loaded into the working state.
func (w *Watcher) SetActiveKey(ctx context.Context, key model.ConversationKey) error {
	return w.do(ctx, func() { w.transition(ctx, key) })
}

// SetContent replaces the working content and schedules an auto-save. It never waits on the
// loop; the latest content wins.
func (w *Watcher) SetContent(content string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.content = content
	w.contentEdited = true
	w.touchLocked()
}

// MetaChanged samples the providers into the working meta and schedules an auto-save.
func (w *Watcher) MetaChanged() {
	var attachments []model.AttachmentRef
	if w.opts.Attachments != nil {
		attachments = validate.ValidAttachments(w.opts.Attachments.Attachments())
	}
	var macros []model.MacroAction
	if w.opts.Macros != nil {
		macros = validate.ValidMacroActions(w.opts.Macros.ReplyMacroActions())
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.opts.Attachments != nil {
		w.meta.Attachments = attachments
	}
	if w.opts.Macros != nil {
		w.meta.MacroActions = macros
	}
	w.metaEdited = true
	w.touchLocked()
}

func (w *Watcher) Snapshot() Working {
	w.mu.Lock()
	snap := Working{
		Key:     w.key,
		Content: w.content,
		Meta:    cloneMeta(w.meta),
		State:   w.state,
		Dirty:   w.pending,
	}
	w.mu.Unlock()

	if !snap.Dirty && snap.Key != "" {
		snap.Dirty = w.cache.Dirty(snap.Key)
	}
	return snap
}

// Clear discards the working reply for the active conversation, locally and remotely.
func (w *Watcher) Clear(ctx context.Context) error {
	var err error
	doErr := w.do(ctx, func() {
		w.save.Invalidate()
		w.remote.Invalidate()

		w.mu.Lock()
		key := w.key
		w.content = ""
		w.meta = model.DraftMeta{}
		w.pending = false
		w.mu.Unlock()

		if key == "" {
			return
		}
		_, err = w.sync.Clear(ctx, key)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// FlushAndSync writes pending edits to the cache and syncs the active draft right away.
func (w *Watcher) FlushAndSync(ctx context.Context) error {
	var err error
	doErr := w.do(ctx, func() {
		w.save.Invalidate()
		w.remote.Invalidate()
		key := w.activeKey()
		if key == "" {
			return
		}
		w.flush()
		var outcome syncer.Outcome
		outcome, err = w.sync.Sync(ctx, key)
		watcherLogger.Debug().Str("key", string(key)).Stringer("outcome", outcome).Msg("Flushed active draft")
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Reset ends the session: pending edits are flushed, stale drafts pruned, every dirty draft
// synced, and the working state cleared. Drafts that failed to sync stay in the cache.
func (w *Watcher) Reset(ctx context.Context) error {
	var err error
	doErr := w.do(ctx, func() {
		err = w.reset(ctx)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Close flushes and syncs the active draft, then stops the loop. Calls after Close return
// ErrClosed.
func (w *Watcher) Close(ctx context.Context) error {
	err := w.FlushAndSync(ctx)
	if errors.Is(err, ErrClosed) {
		return nil
	}

	w.closeOnce.Do(func() {
		w.save.Stop()
		w.remote.Stop()
		w.guard.Stop()
		w.cancel()
		close(w.done)
	})
	<-w.stopped
	return err
}

func (w *Watcher) transition(ctx context.Context, next model.ConversationKey) {
	w.mu.Lock()
	prev := w.key
	if next == prev {
		w.mu.Unlock()
		return
	}

	w.state = Transitioning
	w.save.Invalidate()
	w.remote.Invalidate()

	// Keystrokes typed inside the debounce window belong to the previous conversation.
	edits, hasEdits := w.takeLocked()

	w.key = next
	w.content = ""
	w.meta = model.DraftMeta{}
	w.contentEdited = false
	w.metaEdited = false
	w.mu.Unlock()

	metrics.KeyTransitions.Inc()
	watcherLogger.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("Active conversation changed")

	if prev != "" {
		if hasEdits {
			w.cache.Set(prev, edits.Content, edits.Meta)
		}
		w.retire(ctx, prev)
	}

	if next != "" {
		w.loading = true
		content, meta := w.load(ctx, next)
		w.loading = false
		w.install(content, meta)
	}

	w.guard.Schedule(func(gen uint64) {
		w.post(func() { w.endGuard(gen) })
	})
}

// retire syncs the draft of a conversation being left and drops it from the cache unless the
// sync failed.
func (w *Watcher) retire(ctx context.Context, key model.ConversationKey) {
	outcome, err := w.sync.Sync(ctx, key)
	if outcome == syncer.Failed || outcome == syncer.Busy {
		watcherLogger.Warn().
			Err(err).
			Str("key", string(key)).
			Stringer("outcome", outcome).
			Msg("Keeping draft locally for retry")
		return
	}
	w.cache.Remove(key)
}

// load resolves the draft to show for key. A local copy with content, or one left dirty by a
// clear that never reached the backend, is pushed first; if that fails it is shown as is.
func (w *Watcher) load(ctx context.Context, key model.ConversationKey) (string, model.DraftMeta) {
	if local, ok := w.cache.Entry(key); ok {
		if !local.IsEmpty() || local.Dirty {
			outcome, err := w.sync.Push(ctx, key)
			if outcome == syncer.Failed || outcome == syncer.Busy {
				watcherLogger.Warn().
					Err(err).
					Str("key", string(key)).
					Msg("Could not push local draft, presenting local copy")
				return local.Content, local.Meta
			}
		}
		w.cache.Remove(key)
	}

	rec, err := w.backend.GetDraft(ctx, key)
	if err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			watcherLogger.Warn().Err(err).Str("key", string(key)).Msg("Error fetching draft, starting empty")
		}
		return "", model.DraftMeta{}
	}

	draft := model.Draft{Key: key, Content: rec.Content, Meta: validate.Meta(rec.Meta)}
	if draft.IsEmpty() {
		if err := w.backend.DeleteDraft(ctx, key); err != nil && !errors.Is(err, backend.ErrNotFound) {
			watcherLogger.Warn().Err(err).Str("key", string(key)).Msg("Error deleting empty remote draft")
		}
		return "", model.DraftMeta{}
	}
	return draft.Content, draft.Meta
}

// install puts a loaded draft into the working state. Edits made while it was loading win.
func (w *Watcher) install(content string, meta model.DraftMeta) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.contentEdited {
		w.content = content
	}
	if !w.metaEdited {
		w.meta = meta
	}
}

func (w *Watcher) endGuard(gen uint64) {
	if !w.guard.IsCurrent(gen) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = Idle
	if w.pending {
		w.scheduleSave(w.key)
	}
}

func (w *Watcher) touchLocked() {
	if w.key == "" {
		return
	}
	w.pending = true
	w.scheduleSave(w.key)
}

func (w *Watcher) scheduleSave(key model.ConversationKey) {
	w.save.Schedule(func(gen uint64) {
		w.post(func() { w.autosave(key, gen) })
	})
}

func (w *Watcher) autosave(key model.ConversationKey, gen uint64) {
	if reason := w.skipReason(w.save, key, gen); reason != "" {
		metrics.AutosaveSkipped.WithLabelValues(reason).Inc()
		watcherLogger.Debug().Str("key", string(key)).Str("reason", reason).Msg("Skipping auto-save")
		return
	}

	w.flush()

	if w.opts.RemoteSyncDelay > 0 {
		w.remote.Schedule(func(gen uint64) {
			w.post(func() { w.remoteSync(key, gen) })
		})
	}
}

func (w *Watcher) remoteSync(key model.ConversationKey, gen uint64) {
	if reason := w.skipReason(w.remote, key, gen); reason != "" {
		watcherLogger.Debug().Str("key", string(key)).Str("reason", reason).Msg("Skipping remote sync")
		return
	}
	// Failures leave the draft dirty for the next trigger.
	w.sync.Sync(w.ctx, key)
}

func (w *Watcher) skipReason(d *debounce.Debouncer, key model.ConversationKey, gen uint64) string {
	w.mu.Lock()
	state, active := w.state, w.key
	w.mu.Unlock()

	switch {
	case !d.IsCurrent(gen):
		return "stale"
	case w.loading:
		return "loading"
	case state == Transitioning:
		return "transitioning"
	case key != active:
		return "key_changed"
	}
	return ""
}

// flush writes pending working edits into the cache under the active key.
func (w *Watcher) flush() {
	w.mu.Lock()
	edits, ok := w.takeLocked()
	w.mu.Unlock()

	if ok {
		w.cache.Set(edits.Key, edits.Content, edits.Meta)
	}
}

// takeLocked clears the pending flag and returns a copy of the edits it covered.
func (w *Watcher) takeLocked() (model.Draft, bool) {
	if !w.pending || w.key == "" {
		return model.Draft{}, false
	}
	w.pending = false
	return model.Draft{Key: w.key, Content: w.content, Meta: cloneMeta(w.meta)}, true
}

func (w *Watcher) activeKey() model.ConversationKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key
}

func (w *Watcher) reset(ctx context.Context) error {
	w.flush()
	w.save.Invalidate()
	w.remote.Invalidate()
	w.guard.Invalidate()

	if w.opts.Retention > 0 {
		w.cache.Prune(w.opts.Retention)
	}

	report, err := w.sync.SyncPending(ctx)
	for key, outcome := range report {
		if outcome == syncer.Saved || outcome == syncer.Deleted {
			w.cache.Remove(key)
		}
	}
	// The active draft may have been clean already.
	if key := w.activeKey(); key != "" && !w.cache.Dirty(key) {
		w.cache.Remove(key)
	}

	w.mu.Lock()
	w.key = ""
	w.content = ""
	w.meta = model.DraftMeta{}
	w.pending = false
	w.contentEdited = false
	w.metaEdited = false
	w.state = Idle
	w.mu.Unlock()
	return err
}

func cloneMeta(m model.DraftMeta) model.DraftMeta {
	return model.DraftMeta{
		Attachments:  slices.Clone(m.Attachments),
		MacroActions: slices.Clone(m.MacroActions),
	}
}
