package backend

import (
	"context"
	"sync"
	"time"

	"github.com/debemdeboas/draftsync/internal/cache"
	"github.com/debemdeboas/draftsync/internal/model"
)

// Call is one request observed by MemoryBackend.
type Call struct {
	Op      string
	Key     model.ConversationKey
	Content string
}

// MemoryBackend keeps drafts in process. It records every call and can be told to fail,
// which makes it the backend of choice for tests and offline runs.
type MemoryBackend struct {
	drafts *cache.Cache[model.ConversationKey, Record]

	mu    sync.Mutex
	calls []Call
	err   error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		drafts: cache.NewCache[model.ConversationKey, Record](),
	}
}

// Fail makes every following call return err until Fail(nil).
func (m *MemoryBackend) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the calls seen so far, oldest first.
func (m *MemoryBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsFor returns the calls seen for op, oldest first.
func (m *MemoryBackend) CallsFor(op string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *MemoryBackend) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Put seeds a record directly, bypassing call recording and validation.
func (m *MemoryBackend) Put(key model.ConversationKey, rec Record) {
	m.drafts.Set(key, rec)
}

// Peek reads a record directly, bypassing call recording.
func (m *MemoryBackend) Peek(key model.ConversationKey) (Record, bool) {
	return m.drafts.Get(key)
}

func (m *MemoryBackend) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	return m.err
}

func (m *MemoryBackend) GetDraft(ctx context.Context, key model.ConversationKey) (Record, error) {
	if err := m.record(Call{Op: "get", Key: key}); err != nil {
		return Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	rec, ok := m.drafts.Get(key)
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryBackend) SaveDraft(ctx context.Context, key model.ConversationKey, content string, meta model.DraftMeta) error {
	if err := m.record(Call{Op: "save", Key: key, Content: content}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rawMeta, err := EncodeMeta(meta)
	if err != nil {
		return err
	}

	m.drafts.Set(key, Record{
		Content:   content,
		Meta:      rawMeta,
		UpdatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *MemoryBackend) DeleteDraft(ctx context.Context, key model.ConversationKey) error {
	if err := m.record(Call{Op: "delete", Key: key}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, ok := m.drafts.Pop(key); !ok {
		return ErrNotFound
	}
	return nil
}
