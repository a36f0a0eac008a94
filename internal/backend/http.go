package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/debemdeboas/draftsync/internal/metrics"
	"github.com/debemdeboas/draftsync/internal/model"
)

const DefaultTimeout = 10 * time.Second

// HTTPBackend talks to the help-desk draft endpoints:
//
//	GET    {base}/api/v1/conversations/{key}/draft
//	PUT    {base}/api/v1/conversations/{key}/draft
//	DELETE {base}/api/v1/conversations/{key}/draft
//
// Responses are wrapped in a {"data": ...} envelope.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	header  http.Header
}

func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		header:  make(http.Header),
	}
}

// SetHeader adds a header sent with every request, e.g. a session cookie set up by the host.
func (b *HTTPBackend) SetHeader(key, value string) {
	b.header.Set(key, value)
}

type envelope struct {
	Data *Record `json:"data"`
}

type saveRequest struct {
	Content string          `json:"content"`
	Meta    json.RawMessage `json:"meta"`
}

func (b *HTTPBackend) draftURL(key model.ConversationKey) string {
	return b.baseURL + "/api/v1/conversations/" + url.PathEscape(string(key)) + "/draft"
}

func (b *HTTPBackend) GetDraft(ctx context.Context, key model.ConversationKey) (Record, error) {
	resp, err := b.do(ctx, "get", http.MethodGet, key, nil)
	if err != nil {
		return Record{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Record{}, fmt.Errorf("%w: decoding draft %q: %v", ErrNetwork, key, err)
	}
	if env.Data == nil {
		return Record{}, ErrNotFound
	}
	return *env.Data, nil
}

func (b *HTTPBackend) SaveDraft(ctx context.Context, key model.ConversationKey, content string, meta model.DraftMeta) error {
	rawMeta, err := EncodeMeta(meta)
	if err != nil {
		return err
	}

	body, err := json.Marshal(saveRequest{Content: content, Meta: rawMeta})
	if err != nil {
		return fmt.Errorf("error encoding draft %q: %w", key, err)
	}

	resp, err := b.do(ctx, "save", http.MethodPut, key, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (b *HTTPBackend) DeleteDraft(ctx context.Context, key model.ConversationKey) error {
	resp, err := b.do(ctx, "delete", http.MethodDelete, key, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do performs the request and maps the status code onto the package errors. On success the
// caller owns the response body.
func (b *HTTPBackend) do(ctx context.Context, op, method string, key model.ConversationKey, body []byte) (*http.Response, error) {
	start := time.Now()
	defer func() {
		metrics.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.draftURL(key), reader)
	if err != nil {
		return nil, fmt.Errorf("error building %s request for %q: %w", op, key, err)
	}
	for k, v := range b.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%w: %s %q: %v", ErrNetwork, op, key, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		metrics.BackendRequests.WithLabelValues(op, "ok").Inc()
		return resp, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		metrics.BackendRequests.WithLabelValues(op, "not_found").Inc()
		return nil, ErrNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg := readSnippet(resp.Body)
		resp.Body.Close()
		metrics.BackendRequests.WithLabelValues(op, "rejected").Inc()
		backendLogger.Warn().
			Str("op", op).
			Str("key", string(key)).
			Int("status", resp.StatusCode).
			Str("body", msg).
			Msg("Draft request rejected")
		return nil, fmt.Errorf("%w: %s %q: status %d", ErrRejected, op, key, resp.StatusCode)
	default:
		resp.Body.Close()
		metrics.BackendRequests.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%w: %s %q: status %d", ErrNetwork, op, key, resp.StatusCode)
	}
}

func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(data)
}
