// Package surface defines the message-rendering surface shared by the chat
// and live sessions.
package surface

import "github.com/vango-go/vai-wellness/pkg/core/types"

// Cursor is appended to content that is still streaming.
const Cursor = "▍"

// ElementID identifies one rendered entry.
type ElementID string

// Surface renders the message list. Content is markdown and every update is
// a full re-render of the entry. Implementations must be safe for concurrent
// use: the chat and live sessions share one surface.
type Surface interface {
	// AddMessage appends an entry. A streaming entry shows Cursor after its content.
	AddMessage(role types.Role, markdown string, streaming bool) ElementID

	// UpdateMessage replaces an entry's content.
	UpdateMessage(id ElementID, markdown string, streaming bool)

	// ShowSources appends an ordered source list after an entry's content.
	ShowSources(id ElementID, sources []types.Source)

	// ShowImage replaces an entry's content with an image.
	ShowImage(id ElementID, img types.InlineData, alt string)

	// AddError appends an error-styled entry.
	AddError(text string) ElementID

	// Remove deletes an entry. Unknown IDs are ignored.
	Remove(id ElementID)

	// Clear removes every entry.
	Clear()

	// ScrollToBottom keeps the newest entry in view.
	ScrollToBottom()

	// SetBusy reflects whether a turn is in flight.
	SetBusy(busy bool)

	// SetInputActive reflects whether the input row has text or an attachment.
	SetInputActive(active bool)
}

// DisplayPrompt is the text shown for a user entry: the prompt, or a note
// naming the attachment when the prompt is empty.
func DisplayPrompt(prompt, attachmentName string) string {
	if prompt != "" {
		return prompt
	}
	if attachmentName != "" {
		return "(attached: " + attachmentName + ")"
	}
	return ""
}
