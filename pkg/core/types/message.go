package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	// RoleError marks UI-only error entries. They never enter history.
	RoleError Role = "error"
)

// InlineData is binary content carried inside a message part.
// Data marshals to base64 in JSON.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Part is one element of a message. Exactly one field is set.
type Part struct {
	Text        string      `json:"text,omitempty"`
	InlineImage *InlineData `json:"inlineImage,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// InlinePart returns a part carrying binary data (image or other attachment).
func InlinePart(mimeType string, data []byte) Part {
	return Part{InlineImage: &InlineData{MIMEType: mimeType, Data: data}}
}

// IsEmpty reports whether the part carries no content.
func (p Part) IsEmpty() bool {
	return p.Text == "" && (p.InlineImage == nil || len(p.InlineImage.Data) == 0)
}

// Message is one entry of a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage creates a message with a fresh ID. Empty parts are dropped.
func NewMessage(role Role, parts ...Part) Message {
	kept := make([]Part, 0, len(parts))
	for _, p := range parts {
		if !p.IsEmpty() {
			kept = append(kept, p)
		}
	}
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     kept,
		CreatedAt: time.Now().UTC(),
	}
}

// Text returns the concatenated text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// Images returns the inline binary parts in order.
func (m Message) Images() []InlineData {
	var out []InlineData
	for _, p := range m.Parts {
		if p.InlineImage != nil {
			out = append(out, *p.InlineImage)
		}
	}
	return out
}

// Validate checks the structural invariants of a single message.
func (m Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleModel, RoleError:
	default:
		return fmt.Errorf("message %q: unknown role %q", m.ID, m.Role)
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message %q: no parts", m.ID)
	}
	for i, p := range m.Parts {
		if p.Text != "" && p.InlineImage != nil {
			return fmt.Errorf("message %q: part %d sets both text and inline data", m.ID, i)
		}
		if p.InlineImage != nil && p.InlineImage.MIMEType == "" {
			return fmt.Errorf("message %q: part %d has no mime type", m.ID, i)
		}
	}
	return nil
}

// ErrUnpairedHistory is returned by ValidateHistory when turns do not alternate.
var ErrUnpairedHistory = errors.New("history is not a sequence of (user, model) pairs")

// ValidateHistory checks that history is an alternating user/model sequence
// of complete pairs. Error entries are not allowed.
func ValidateHistory(history []Message) error {
	if len(history)%2 != 0 {
		return ErrUnpairedHistory
	}
	for i, m := range history {
		if err := m.Validate(); err != nil {
			return err
		}
		want := RoleUser
		if i%2 == 1 {
			want = RoleModel
		}
		if m.Role != want {
			return fmt.Errorf("%w: entry %d has role %q", ErrUnpairedHistory, i, m.Role)
		}
	}
	return nil
}
