// Package model defines the draft records shared by the cache, the sync layer and the watcher.
package model

import (
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ConversationKey identifies the conversation a draft belongs to.
// The zero value means "no active conversation".
type ConversationKey string

type AttachmentRef struct {
	ID          int64  `json:"id"`
	Size        int64  `json:"size"`
	UUID        string `json:"uuid"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type MacroAction struct {
	Type         string   `json:"type"`
	Value        []string `json:"value"`
	DisplayValue []string `json:"display_value"`
}

type DraftMeta struct {
	Attachments  []AttachmentRef `json:"attachments,omitempty"`
	MacroActions []MacroAction   `json:"macro_actions,omitempty"`
}

func (m DraftMeta) IsEmpty() bool {
	return len(m.Attachments) == 0 && len(m.MacroActions) == 0
}

type Draft struct {
	Key     ConversationKey `json:"key"`
	Content string          `json:"content"`
	Meta    DraftMeta       `json:"meta"`

	// Last local mutation. Only used to order evictions.
	Timestamp time.Time `json:"timestamp"`
}

// IsEmpty reports whether the draft carries nothing worth persisting:
// no visible text, no attachments and no macro actions.
func (d Draft) IsEmpty() bool {
	return !HasVisibleText(d.Content) && d.Meta.IsEmpty()
}

// VisibleText returns the text a reader would see in the serialized markup,
// with tags dropped and entities decoded.
func VisibleText(content string) string {
	if !strings.ContainsAny(content, "<&") {
		return content
	}

	var s strings.Builder
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed trailing input, either way we are done.
			return s.String()
		case html.TextToken:
			s.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" || string(name) == "p" {
				s.WriteByte(' ')
			}
		}
	}
}

func HasVisibleText(content string) bool {
	return strings.TrimSpace(VisibleText(content)) != ""
}
