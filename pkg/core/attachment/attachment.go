// Package attachment holds the single pending file or camera capture that
// accompanies the next submission.
package attachment

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// Camera captures are always attached under this name and type.
const (
	CaptureName     = "capture.jpg"
	CaptureMIMEType = "image/jpeg"
)

// DefaultMaxBytes is the largest file accepted for inline upload.
const DefaultMaxBytes = 20 << 20

// Pending is an attachment waiting to be sent.
type Pending struct {
	Name     string
	MIMEType string
	// Data is the base64 encoding of the file contents.
	Data string
}

// Bytes decodes the attachment contents.
func (p Pending) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

// Part converts the attachment to a message part.
func (p Pending) Part() (types.Part, error) {
	data, err := p.Bytes()
	if err != nil {
		return types.Part{}, fmt.Errorf("decode attachment %q: %w", p.Name, err)
	}
	return types.InlinePart(p.MIMEType, data), nil
}

// IsImage reports whether the attachment is an image.
func (p Pending) IsImage() bool {
	return strings.HasPrefix(p.MIMEType, "image/")
}

// Manager owns the input row state: prompt text and at most one attachment.
// The active flag is recomputed and reported on every mutation.
type Manager struct {
	mu       sync.Mutex
	text     string
	pending  *Pending
	maxBytes int64
	onActive func(active bool)
}

// Option configures a Manager.
type Option func(*Manager)

// WithActiveListener registers a callback invoked after every mutation with
// the current active flag.
func WithActiveListener(fn func(active bool)) Option {
	return func(m *Manager) {
		m.onActive = fn
	}
}

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int64) Option {
	return func(m *Manager) {
		m.maxBytes = n
	}
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach reads r fully and replaces any pending attachment. On a read
// failure it returns a ReadError and leaves no attachment pending.
func (m *Manager) Attach(name, mimeType string, r io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(r, m.maxBytes+1))
	if err == nil && int64(len(data)) > m.maxBytes {
		err = fmt.Errorf("file exceeds %d bytes", m.maxBytes)
	}
	if err != nil {
		m.mutate(func() { m.pending = nil })
		return &core.Error{Kind: core.KindReadError, Op: "attach " + name, Err: err}
	}
	if mimeType == "" {
		mimeType = detectMIMEType(name, data)
	}
	p := &Pending{
		Name:     name,
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
	m.mutate(func() { m.pending = p })
	return nil
}

// AttachFile attaches the file at path.
func (m *Manager) AttachFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		m.mutate(func() { m.pending = nil })
		return &core.Error{Kind: core.KindReadError, Op: "attach " + filepath.Base(path), Err: err}
	}
	defer f.Close()
	return m.Attach(filepath.Base(path), "", f)
}

// AttachCapture attaches a JPEG camera frame.
func (m *Manager) AttachCapture(jpeg []byte) error {
	return m.Attach(CaptureName, CaptureMIMEType, bytes.NewReader(jpeg))
}

// Clear drops the pending attachment. It is idempotent.
func (m *Manager) Clear() {
	m.mutate(func() { m.pending = nil })
}

// SetText replaces the prompt text.
func (m *Manager) SetText(text string) {
	m.mutate(func() { m.text = text })
}

// Text returns the prompt text.
func (m *Manager) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// Pending returns the pending attachment, if any.
func (m *Manager) Pending() (Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return Pending{}, false
	}
	return *m.pending, true
}

// Take returns the prompt text and attachment and clears both.
func (m *Manager) Take() (string, *Pending) {
	var (
		text string
		p    *Pending
	)
	m.mutate(func() {
		text, p = m.text, m.pending
		m.text, m.pending = "", nil
	})
	return text, p
}

// Reset clears the prompt text and the attachment.
func (m *Manager) Reset() {
	m.mutate(func() {
		m.text, m.pending = "", nil
	})
}

// Active reports whether the input row has text or an attachment.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

func (m *Manager) activeLocked() bool {
	return strings.TrimSpace(m.text) != "" || m.pending != nil
}

func (m *Manager) mutate(fn func()) {
	m.mu.Lock()
	fn()
	active := m.activeLocked()
	listener := m.onActive
	m.mu.Unlock()
	if listener != nil {
		listener(active)
	}
}

func detectMIMEType(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
		return t
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	t := http.DetectContentType(data)
	if mediaType, _, err := mime.ParseMediaType(t); err == nil {
		return mediaType
	}
	return t
}
