// Package validate filters attachment and macro records read back from local storage or the
// backend. Records drift in shape across client versions; anything missing a required field is
// dropped instead of being handed to callers half-populated.
package validate

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/draftsync/internal/model"
)

var validateLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	validateLogger = l
}

var (
	attachmentFields = []string{"id", "size", "uuid", "filename", "content_type"}
	macroFields      = []string{"type", "value", "display_value"}
	macroListFields  = []string{"value", "display_value"}
)

// Meta decodes a raw meta document, keeping only well-formed records.
// A missing or undecodable document yields an empty meta.
func Meta(raw json.RawMessage) model.DraftMeta {
	if len(raw) == 0 {
		return model.DraftMeta{}
	}

	var doc struct {
		Attachments  json.RawMessage `json:"attachments"`
		MacroActions json.RawMessage `json:"macro_actions"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		validateLogger.Debug().Err(err).Msg("Dropping undecodable draft meta")
		return model.DraftMeta{}
	}

	return model.DraftMeta{
		Attachments:  Attachments(doc.Attachments),
		MacroActions: MacroActions(doc.MacroActions),
	}
}

// Attachments keeps the entries of a JSON array that carry id, size, uuid, filename and
// content_type, in their original order.
func Attachments(raw json.RawMessage) []model.AttachmentRef {
	var out []model.AttachmentRef
	for i, obj := range objects(raw) {
		if !hasFields(obj, attachmentFields) {
			validateLogger.Debug().Int("index", i).Msg("Dropping attachment with missing fields")
			continue
		}

		var a model.AttachmentRef
		if err := remarshal(obj, &a); err != nil {
			validateLogger.Debug().Err(err).Int("index", i).Msg("Dropping malformed attachment")
			continue
		}
		// A present key can still decode to a zero value, e.g. "uuid": null.
		if !validAttachment(a) {
			validateLogger.Debug().Int("index", i).Msg("Dropping attachment with empty fields")
			continue
		}
		out = append(out, a)
	}
	return out
}

// MacroActions keeps the entries of a JSON array that carry type, value and display_value,
// where value and display_value are arrays.
func MacroActions(raw json.RawMessage) []model.MacroAction {
	var out []model.MacroAction
	for i, obj := range objects(raw) {
		if !hasFields(obj, macroFields) || !areLists(obj, macroListFields) {
			validateLogger.Debug().Int("index", i).Msg("Dropping macro action with missing fields")
			continue
		}

		var m model.MacroAction
		if err := remarshal(obj, &m); err != nil {
			validateLogger.Debug().Err(err).Int("index", i).Msg("Dropping malformed macro action")
			continue
		}
		if !validMacroAction(m) {
			validateLogger.Debug().Int("index", i).Msg("Dropping macro action with empty type")
			continue
		}
		out = append(out, m)
	}
	return out
}

// ValidAttachments applies the same rule to already typed records, as handed over by an
// attachment provider. The zero value of a field counts as missing.
func ValidAttachments(list []model.AttachmentRef) []model.AttachmentRef {
	var out []model.AttachmentRef
	for _, a := range list {
		if validAttachment(a) {
			out = append(out, a)
		}
	}
	return out
}

func ValidMacroActions(list []model.MacroAction) []model.MacroAction {
	var out []model.MacroAction
	for _, m := range list {
		if validMacroAction(m) {
			out = append(out, m)
		}
	}
	return out
}

func validAttachment(a model.AttachmentRef) bool {
	return a.ID != 0 && a.UUID != "" && a.Filename != "" && a.ContentType != ""
}

func validMacroAction(m model.MacroAction) bool {
	return m.Type != "" && m.Value != nil && m.DisplayValue != nil
}

// objects splits a JSON array into its object elements. Non-array input and
// non-object elements produce nothing; null elements are skipped.
func objects(raw json.RawMessage) []map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}

	out := make([]map[string]json.RawMessage, 0, len(elems))
	for _, e := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(e, &obj); err != nil || obj == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, obj)
	}
	return out
}

func hasFields(obj map[string]json.RawMessage, fields []string) bool {
	if obj == nil {
		return false
	}
	for _, f := range fields {
		if _, ok := obj[f]; !ok {
			return false
		}
	}
	return true
}

func areLists(obj map[string]json.RawMessage, fields []string) bool {
	for _, f := range fields {
		var list []json.RawMessage
		if err := json.Unmarshal(obj[f], &list); err != nil || list == nil {
			return false
		}
	}
	return true
}

func remarshal(obj map[string]json.RawMessage, v any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
