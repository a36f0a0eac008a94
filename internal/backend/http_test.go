package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/debemdeboas/draftsync/internal/model"
)

// draftServer is a minimal stand-in for the help-desk draft endpoints.
type draftServer struct {
	mu      sync.Mutex
	drafts  map[string]saveRequest
	status  int // forced status, 0 = normal behaviour
	headers []http.Header
}

func newDraftServer() *draftServer {
	return &draftServer{drafts: make(map[string]saveRequest)}
}

func (s *draftServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, r.Header.Clone())

	if s.status != 0 {
		w.WriteHeader(s.status)
		w.Write([]byte(`{"message": "forced"}`))
		return
	}

	key := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/conversations/"), "/draft")

	switch r.Method {
	case http.MethodGet:
		d, ok := s.drafts[key]
		if !ok {
			w.Write([]byte(`{"data": null}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"content":    d.Content,
			"meta":       d.Meta,
			"updated_at": "2025-01-01T00:00:00Z",
		}})
	case http.MethodPut:
		var req saveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.drafts[key] = req
		w.Write([]byte(`{"data": {}}`))
	case http.MethodDelete:
		if _, ok := s.drafts[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.drafts, key)
		w.Write([]byte(`{"data": true}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestHTTPBackend_SaveGetDelete(t *testing.T) {
	srv := newDraftServer()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	b := NewHTTPBackend(ts.URL+"/", nil)
	ctx := context.Background()

	t.Run("Get missing draft", func(t *testing.T) {
		_, err := b.GetDraft(ctx, "conv-1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for data: null, got %v", err)
		}
	})

	t.Run("Save then get", func(t *testing.T) {
		meta := model.DraftMeta{MacroActions: []model.MacroAction{
			{Type: "set_status", Value: []string{"2"}, DisplayValue: []string{"Resolved"}},
		}}
		if err := b.SaveDraft(ctx, "conv-1", "<p>Hello</p>", meta); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}

		rec, err := b.GetDraft(ctx, "conv-1")
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if rec.Content != "<p>Hello</p>" {
			t.Errorf("Expected content <p>Hello</p>, got %q", rec.Content)
		}
		if !strings.Contains(string(rec.Meta), `"macro_actions"`) {
			t.Errorf("Expected raw meta to carry macro_actions, got %s", rec.Meta)
		}
		if rec.UpdatedAt.IsZero() {
			t.Error("Expected updated_at to be decoded")
		}
	})

	t.Run("Delete twice", func(t *testing.T) {
		if err := b.DeleteDraft(ctx, "conv-1"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if err := b.DeleteDraft(ctx, "conv-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound deleting a missing draft, got %v", err)
		}
	})
}

func TestHTTPBackend_StatusMapping(t *testing.T) {
	testCases := []struct {
		status   int
		expected error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadRequest, ErrRejected},
		{http.StatusForbidden, ErrRejected},
		{http.StatusInternalServerError, ErrNetwork},
		{http.StatusBadGateway, ErrNetwork},
	}

	for _, tc := range testCases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := newDraftServer()
			srv.status = tc.status
			ts := httptest.NewServer(srv)
			defer ts.Close()

			b := NewHTTPBackend(ts.URL, nil)
			err := b.SaveDraft(context.Background(), "conv-1", "Hello", model.DraftMeta{})
			if !errors.Is(err, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, err)
			}
		})
	}
}

func TestHTTPBackend_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	b := NewHTTPBackend(url, nil)
	_, err := b.GetDraft(context.Background(), "conv-1")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Expected ErrNetwork for a closed server, got %v", err)
	}
}

func TestHTTPBackend_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>gateway</html>")
	}))
	defer ts.Close()

	b := NewHTTPBackend(ts.URL, nil)
	_, err := b.GetDraft(context.Background(), "conv-1")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Expected ErrNetwork for an undecodable body, got %v", err)
	}
}

func TestHTTPBackend_HeadersAndEscaping(t *testing.T) {
	var gotPath string
	var gotCookie string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotCookie = r.Header.Get("Cookie")
		w.Write([]byte(`{"data": null}`))
	}))
	defer ts.Close()

	b := NewHTTPBackend(ts.URL, nil)
	b.SetHeader("Cookie", "session=abc")
	b.GetDraft(context.Background(), "conv/1")

	if gotPath != "/api/v1/conversations/conv%2F1/draft" {
		t.Errorf("Expected escaped key in path, got %s", gotPath)
	}
	if gotCookie != "session=abc" {
		t.Errorf("Expected configured header to be sent, got %q", gotCookie)
	}
}

func TestHTTPBackend_MetaTooLarge(t *testing.T) {
	ts := httptest.NewServer(newDraftServer())
	defer ts.Close()

	var macros []model.MacroAction
	for i := 0; i < 1000; i++ {
		macros = append(macros, model.MacroAction{
			Type:         "add_tags",
			Value:        []string{strings.Repeat("x", 20)},
			DisplayValue: []string{strings.Repeat("y", 20)},
		})
	}

	b := NewHTTPBackend(ts.URL, nil)
	err := b.SaveDraft(context.Background(), "conv-1", "Hello", model.DraftMeta{MacroActions: macros})
	if !errors.Is(err, ErrMetaTooLarge) {
		t.Errorf("Expected ErrMetaTooLarge, got %v", err)
	}
}
