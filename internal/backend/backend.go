// Package backend is the client side of the remote draft API: fetch, full-overwrite save and
// idempotent delete of one draft per conversation.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/draftsync/internal/model"
)

// MaxMetaSize mirrors the server-side limit on the serialized meta document.
const MaxMetaSize = 32 * 1024

var (
	// ErrNotFound means the backend holds no draft for the key. Callers treat it as an
	// empty draft on fetch and as success on delete.
	ErrNotFound = errors.New("backend: draft not found")

	// ErrNetwork covers transport failures and server errors. The draft stays dirty and
	// the next trigger retries.
	ErrNetwork = errors.New("backend: unavailable")

	// ErrRejected is a 4xx other than 404: the request itself was refused.
	ErrRejected = errors.New("backend: request rejected")

	ErrMetaTooLarge = fmt.Errorf("backend: meta exceeds %d bytes", MaxMetaSize)
)

// Record is a draft as the backend returns it. Meta is left raw so that it can be validated
// before anything reads it.
type Record struct {
	Content   string          `json:"content"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Backend interface {
	GetDraft(ctx context.Context, key model.ConversationKey) (Record, error)
	SaveDraft(ctx context.Context, key model.ConversationKey, content string, meta model.DraftMeta) error
	DeleteDraft(ctx context.Context, key model.ConversationKey) error
}

var backendLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	backendLogger = l
}

// EncodeMeta serializes meta and enforces MaxMetaSize.
func EncodeMeta(meta model.DraftMeta) (json.RawMessage, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("error encoding meta: %w", err)
	}
	if len(data) > MaxMetaSize {
		return nil, ErrMetaTooLarge
	}
	return data, nil
}
