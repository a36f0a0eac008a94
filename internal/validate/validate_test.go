package validate

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/debemdeboas/draftsync/internal/model"
)

const fullAttachment = `{"id": 7, "size": 2048, "uuid": "0b9c1b9e-4e0a-4d3e-9d8c-3f1f8c1a2b3c", "filename": "invoice.pdf", "content_type": "application/pdf"}`

func TestAttachments(t *testing.T) {
	t.Run("Missing uuid is dropped", func(t *testing.T) {
		raw := json.RawMessage(`[
			{"id": 1, "size": 10, "filename": "a.txt", "content_type": "text/plain"},
			` + fullAttachment + `
		]`)

		got := Attachments(raw)
		if len(got) != 1 {
			t.Fatalf("Expected 1 attachment, got %d", len(got))
		}
		expected := model.AttachmentRef{
			ID:          7,
			Size:        2048,
			UUID:        "0b9c1b9e-4e0a-4d3e-9d8c-3f1f8c1a2b3c",
			Filename:    "invoice.pdf",
			ContentType: "application/pdf",
		}
		if got[0] != expected {
			t.Errorf("Expected %+v, got %+v", expected, got[0])
		}
	})

	t.Run("Order is preserved", func(t *testing.T) {
		raw := json.RawMessage(`[
			{"id": 1, "size": 1, "uuid": "u1", "filename": "1.txt", "content_type": "text/plain"},
			{"id": 2, "size": 2, "uuid": "u2"},
			{"id": 3, "size": 3, "uuid": "u3", "filename": "3.txt", "content_type": "text/plain"}
		]`)

		got := Attachments(raw)
		if len(got) != 2 {
			t.Fatalf("Expected 2 attachments, got %d", len(got))
		}
		if got[0].ID != 1 || got[1].ID != 3 {
			t.Errorf("Expected ids [1 3], got [%d %d]", got[0].ID, got[1].ID)
		}
	})

	t.Run("Null or empty required values are dropped", func(t *testing.T) {
		raw := json.RawMessage(`[
			{"id": 1, "size": 10, "uuid": null, "filename": "a.txt", "content_type": "text/plain"},
			{"id": 2, "size": 10, "uuid": "u2", "filename": "", "content_type": "text/plain"},
			{"id": 0, "size": 10, "uuid": "u3", "filename": "c.txt", "content_type": "text/plain"},
			` + fullAttachment + `
		]`)

		got := Attachments(raw)
		if len(got) != 1 || got[0].ID != 7 {
			t.Errorf("Expected only attachment 7, got %+v", got)
		}

		// The typed path must agree with the JSON path.
		typed := []model.AttachmentRef{
			{ID: 1, Size: 10, Filename: "a.txt", ContentType: "text/plain"},
			{ID: 2, Size: 10, UUID: "u2", ContentType: "text/plain"},
			{Size: 10, UUID: "u3", Filename: "c.txt", ContentType: "text/plain"},
			got[0],
		}
		if valid := ValidAttachments(typed); !reflect.DeepEqual(valid, got) {
			t.Errorf("Expected typed validation to match %+v, got %+v", got, valid)
		}
	})

	t.Run("Garbage input", func(t *testing.T) {
		inputs := []string{``, `null`, `{}`, `"text"`, `[null, 1, "x"]`, `[{"id": "not-a-number", "size": 1, "uuid": "u", "filename": "f", "content_type": "c"}]`}
		for _, in := range inputs {
			if got := Attachments(json.RawMessage(in)); len(got) != 0 {
				t.Errorf("Attachments(%q): expected nothing, got %+v", in, got)
			}
		}
	})
}

func TestMacroActions(t *testing.T) {
	raw := json.RawMessage(`[
		{"type": "set_status", "value": ["2"], "display_value": ["Resolved"]},
		{"type": "set_priority", "value": "1", "display_value": ["High"]},
		{"type": "assign_team", "value": ["4"]},
		{"type": "add_tags", "value": [], "display_value": []},
		{"type": "assign_user", "value": null, "display_value": ["Alice"]},
		{"type": null, "value": ["3"], "display_value": ["Bob"]}
	]`)

	got := MacroActions(raw)
	expected := []model.MacroAction{
		{Type: "set_status", Value: []string{"2"}, DisplayValue: []string{"Resolved"}},
		{Type: "add_tags", Value: []string{}, DisplayValue: []string{}},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %+v, got %+v", expected, got)
	}
}

func TestMeta(t *testing.T) {
	t.Run("Both lists", func(t *testing.T) {
		raw := json.RawMessage(`{
			"attachments": [` + fullAttachment + `, {"id": 2}],
			"macro_actions": [{"type": "set_status", "value": ["2"], "display_value": ["Resolved"]}]
		}`)

		meta := Meta(raw)
		if len(meta.Attachments) != 1 {
			t.Errorf("Expected 1 attachment, got %d", len(meta.Attachments))
		}
		if len(meta.MacroActions) != 1 {
			t.Errorf("Expected 1 macro action, got %d", len(meta.MacroActions))
		}
	})

	t.Run("Empty and invalid documents", func(t *testing.T) {
		for _, in := range []string{``, `{}`, `null`, `[1,2]`, `{"attachments": 5}`} {
			if meta := Meta(json.RawMessage(in)); !meta.IsEmpty() {
				t.Errorf("Meta(%q): expected empty meta, got %+v", in, meta)
			}
		}
	})
}

func TestValidTyped(t *testing.T) {
	attachments := []model.AttachmentRef{
		{ID: 1, Size: 1, UUID: "u1", Filename: "a", ContentType: "text/plain"},
		{ID: 2, Size: 1, Filename: "b", ContentType: "text/plain"},
	}
	if got := ValidAttachments(attachments); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("Expected only attachment 1, got %+v", got)
	}

	macros := []model.MacroAction{
		{Type: "set_status", Value: []string{"2"}, DisplayValue: []string{"Resolved"}},
		{Type: "", Value: []string{"2"}, DisplayValue: []string{"Resolved"}},
		{Type: "set_priority", Value: []string{"1"}},
	}
	if got := ValidMacroActions(macros); len(got) != 1 || got[0].Type != "set_status" {
		t.Errorf("Expected only set_status, got %+v", got)
	}
}
