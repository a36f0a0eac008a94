package cache

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/draftsync/internal/metrics"
	"github.com/debemdeboas/draftsync/internal/model"
	"github.com/debemdeboas/draftsync/internal/storage"
	"github.com/debemdeboas/draftsync/internal/validate"
)

const (
	DefaultMaxEntries = 10

	// StorageKey is the single storage slot holding the serialized draft map.
	StorageKey = "drafts"
)

var cacheLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	cacheLogger = l
}

// Entry is a cached draft plus its sync bookkeeping.
type Entry struct {
	model.Draft

	// Dirty is set on every local write and cleared by a successful backend sync.
	Dirty bool

	// Revision increases on every local write. MarkClean only succeeds for the
	// revision that was actually synced.
	Revision uint64
}

// persistedEntry is the on-disk shape. Meta stays raw so that it goes through the
// validator on the way back in.
type persistedEntry struct {
	Key       model.ConversationKey `json:"key"`
	Content   string                `json:"content"`
	Meta      json.RawMessage       `json:"meta,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
	Dirty     bool                  `json:"dirty"`
}

// DraftCache is the local, capacity-bounded store of in-flight drafts. Every mutation is
// written through to the backing storage. Storage failures are logged and counted but never
// returned: the in-memory state always stands.
type DraftCache struct {
	mu         sync.Mutex
	entries    map[model.ConversationKey]*Entry
	revision   uint64
	maxEntries int

	store storage.Store
	now   func() time.Time
}

// NewDraftCache creates a cache bounded to maxEntries and restores whatever the store holds.
func NewDraftCache(store storage.Store, maxEntries int) *DraftCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	c := &DraftCache{
		entries:    make(map[model.ConversationKey]*Entry),
		maxEntries: maxEntries,
		store:      store,
		now:        time.Now,
	}
	c.load()
	return c
}

func (c *DraftCache) load() {
	data, err := c.store.Get(StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		cacheLogger.Warn().Err(err).Msg("Error reading persisted drafts, starting empty")
		metrics.StorageErrors.WithLabelValues("read").Inc()
		return
	}

	var persisted map[model.ConversationKey]persistedEntry
	if err := json.Unmarshal(data, &persisted); err != nil {
		cacheLogger.Warn().Err(err).Msg("Error decoding persisted drafts, starting empty")
		metrics.StorageErrors.WithLabelValues("decode").Inc()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, p := range persisted {
		if key == "" {
			continue
		}
		c.revision++
		c.entries[key] = &Entry{
			Draft: model.Draft{
				Key:       key,
				Content:   p.Content,
				Meta:      validate.Meta(p.Meta),
				Timestamp: p.Timestamp,
			},
			Dirty:    p.Dirty,
			Revision: c.revision,
		}
	}

	if c.evictLocked() > 0 {
		c.persistLocked()
	}

	cacheLogger.Debug().Int("entries", len(c.entries)).Msg("Restored persisted drafts")
}

func (c *DraftCache) Get(key model.ConversationKey) (model.Draft, bool) {
	e, ok := c.Entry(key)
	return e.Draft, ok
}

// Entry returns a copy of the cached entry for key.
func (c *DraftCache) Entry(key model.ConversationKey) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// Set stores content and meta for key, marks it dirty and stamps it with the current time.
// Entries beyond the bound are evicted oldest first.
func (c *DraftCache) Set(key model.ConversationKey, content string, meta model.DraftMeta) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.revision++
	c.entries[key] = &Entry{
		Draft: model.Draft{
			Key:       key,
			Content:   content,
			Meta:      cloneMeta(meta),
			Timestamp: c.now(),
		},
		Dirty:    true,
		Revision: c.revision,
	}
	c.evictLocked()
	c.persistLocked()
}

func (c *DraftCache) Remove(key model.ConversationKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	c.persistLocked()
}

// Dirty reports whether key has local changes not yet synced.
func (c *DraftCache) Dirty(key model.ConversationKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && e.Dirty
}

// MarkClean clears the dirty flag for key if the entry is still at revision.
// It reports whether the flag was cleared.
func (c *DraftCache) MarkClean(key model.ConversationKey, revision uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.Revision != revision {
		return false
	}
	if e.Dirty {
		e.Dirty = false
		c.persistLocked()
	}
	return true
}

func (c *DraftCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the cached keys, oldest first.
func (c *DraftCache) Keys() []model.ConversationKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]model.ConversationKey, 0, len(c.entries))
	for _, e := range c.sortedLocked() {
		keys = append(keys, e.Key)
	}
	return keys
}

// Pending returns copies of every dirty entry, oldest first.
func (c *DraftCache) Pending() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pending []Entry
	for _, e := range c.sortedLocked() {
		if e.Dirty {
			pending = append(pending, copyEntry(e))
		}
	}
	return pending
}

// Prune removes entries whose last local mutation is older than maxAge and returns how
// many were removed. Dirty entries are pruned too: past the retention period they are
// considered abandoned.
func (c *DraftCache) Prune(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxAge)
	removed := 0
	for key, e := range c.entries {
		if e.Timestamp.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		cacheLogger.Info().Int("count", removed).Dur("max_age", maxAge).Msg("Pruned stale drafts")
		c.persistLocked()
	}
	return removed
}

func (c *DraftCache) sortedLocked() []*Entry {
	sorted := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		sorted = append(sorted, e)
	}
	slices.SortFunc(sorted, func(a, b *Entry) int {
		if cmp := a.Timestamp.Compare(b.Timestamp); cmp != 0 {
			return cmp
		}
		// Same clock reading: fall back to insertion order.
		if a.Revision < b.Revision {
			return -1
		}
		if a.Revision > b.Revision {
			return 1
		}
		return 0
	})
	return sorted
}

func (c *DraftCache) evictLocked() int {
	over := len(c.entries) - c.maxEntries
	if over <= 0 {
		return 0
	}

	for _, e := range c.sortedLocked()[:over] {
		cacheLogger.Info().
			Str("key", string(e.Key)).
			Bool("dirty", e.Dirty).
			Msg("Evicting oldest draft")
		delete(c.entries, e.Key)
		metrics.CacheEvictions.Inc()
	}
	return over
}

func (c *DraftCache) persistLocked() {
	persisted := make(map[model.ConversationKey]persistedEntry, len(c.entries))
	for key, e := range c.entries {
		var meta json.RawMessage
		if !e.Meta.IsEmpty() {
			data, err := json.Marshal(e.Meta)
			if err != nil {
				cacheLogger.Warn().Err(err).Str("key", string(key)).Msg("Error encoding draft meta")
				continue
			}
			meta = data
		}
		persisted[key] = persistedEntry{
			Key:       key,
			Content:   e.Content,
			Meta:      meta,
			Timestamp: e.Timestamp,
			Dirty:     e.Dirty,
		}
	}

	data, err := json.Marshal(persisted)
	if err != nil {
		cacheLogger.Warn().Err(err).Msg("Error encoding drafts")
		metrics.StorageErrors.WithLabelValues("encode").Inc()
		return
	}

	if err := c.store.Set(StorageKey, data); err != nil {
		cacheLogger.Warn().Err(err).Msg("Error persisting drafts, keeping in-memory state")
		metrics.StorageErrors.WithLabelValues("write").Inc()
	}
}

func copyEntry(e *Entry) Entry {
	cp := *e
	cp.Meta = cloneMeta(e.Meta)
	return cp
}

func cloneMeta(m model.DraftMeta) model.DraftMeta {
	return model.DraftMeta{
		Attachments:  slices.Clone(m.Attachments),
		MacroActions: slices.Clone(m.MacroActions),
	}
}
