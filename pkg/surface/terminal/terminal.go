// Package terminal renders the message list to a terminal.
//
// The most recently printed entry is redrawn in place on every update by
// clearing its lines. Entries that are no longer last are printed again in
// full once they finish streaming.
package terminal

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/vango-go/vai-wellness/pkg/core/types"
	"github.com/vango-go/vai-wellness/pkg/render"
	"github.com/vango-go/vai-wellness/pkg/surface"
)

var (
	userLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22C55E"))
	modelLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#38BDF8"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
	busyStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#A3A3A3"))
)

type entry struct {
	id        surface.ElementID
	role      types.Role
	content   string
	streaming bool
	sources   []types.Source
	image     string
}

// Surface writes entries to an io.Writer.
type Surface struct {
	mu       sync.Mutex
	out      *termenv.Output
	renderer render.Renderer
	imageDir string

	next    int
	entries map[surface.ElementID]*entry
	last    surface.ElementID
	height  int
	busy    bool
	active  bool
}

var _ surface.Surface = (*Surface)(nil)

// Option configures a Surface.
type Option func(*Surface)

// WithRenderer sets the markdown renderer. Defaults to render.Plain.
func WithRenderer(r render.Renderer) Option {
	return func(s *Surface) {
		s.renderer = r
	}
}

// WithImageDir sets where generated images are written. Defaults to the
// system temp directory.
func WithImageDir(dir string) Option {
	return func(s *Surface) {
		s.imageDir = dir
	}
}

// New creates a Surface writing to w.
func New(w io.Writer, opts ...Option) *Surface {
	s := &Surface{
		out:      termenv.NewOutput(w),
		renderer: render.Plain{},
		imageDir: os.TempDir(),
		entries:  make(map[surface.ElementID]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRenderer swaps the markdown renderer, for example after a theme change.
func (s *Surface) SetRenderer(r render.Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderer = r
}

// AddMessage implements surface.Surface.
func (s *Surface) AddMessage(role types.Role, markdown string, streaming bool) surface.ElementID {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.newEntry(role, markdown, streaming)
	s.print(e)
	return e.id
}

// UpdateMessage implements surface.Surface.
func (s *Surface) UpdateMessage(id surface.ElementID, markdown string, streaming bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.content = markdown
	e.streaming = streaming
	s.refresh(e)
}

// ShowSources implements surface.Surface.
func (s *Surface) ShowSources(id surface.ElementID, sources []types.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.sources = append([]types.Source(nil), sources...)
	s.refresh(e)
}

// ShowImage implements surface.Surface. The image is written to the image
// directory and the entry shows its path.
func (s *Surface) ShowImage(id surface.ElementID, img types.InlineData, alt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	path, err := s.saveImage(id, img)
	if err != nil {
		e.content = fmt.Sprintf("%s\n\n(could not save image: %v)", alt, err)
	} else {
		e.image = path
		e.content = alt
	}
	e.streaming = false
	s.refresh(e)
}

// AddError implements surface.Surface.
func (s *Surface) AddError(text string) surface.ElementID {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.newEntry(types.RoleError, text, false)
	s.print(e)
	return e.id
}

// Remove implements surface.Surface. Only the last printed entry can be
// erased from the screen; earlier ones are forgotten.
func (s *Surface) Remove(id surface.ElementID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return
	}
	delete(s.entries, id)
	if s.last == id {
		s.erase()
		s.last = ""
	}
}

// Clear implements surface.Surface.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[surface.ElementID]*entry)
	s.last = ""
	s.height = 0
	s.out.ClearScreen()
	s.out.MoveCursor(1, 1)
}

// ScrollToBottom implements surface.Surface. Terminal output always
// follows the newest line.
func (s *Surface) ScrollToBottom() {}

// SetBusy implements surface.Surface.
func (s *Surface) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
}

// Busy reports the last SetBusy value.
func (s *Surface) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// SetInputActive implements surface.Surface.
func (s *Surface) SetInputActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

// Prompt returns the input prompt, reflecting the busy and active state.
func (s *Surface) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.busy:
		return busyStyle.Render("thinking… ") + "> "
	case s.active:
		return userLabel.Render("you") + " + "
	default:
		return userLabel.Render("you") + " > "
	}
}

func (s *Surface) newEntry(role types.Role, content string, streaming bool) *entry {
	s.next++
	e := &entry{
		id:        surface.ElementID(fmt.Sprintf("m%d", s.next)),
		role:      role,
		content:   content,
		streaming: streaming,
	}
	s.entries[e.id] = e
	return e
}

// refresh redraws e in place when it is the last entry. Otherwise e is
// printed again once it has finished streaming.
func (s *Surface) refresh(e *entry) {
	if s.last == e.id {
		s.erase()
		s.print(e)
		return
	}
	if !e.streaming {
		s.print(e)
	}
}

func (s *Surface) print(e *entry) {
	block := s.format(e)
	fmt.Fprintln(s.out, block)
	s.last = e.id
	s.height = strings.Count(block, "\n") + 1
}

// erase clears the lines of the last printed block.
func (s *Surface) erase() {
	if s.height == 0 {
		return
	}
	s.out.ClearLines(s.height)
	s.out.ClearLine()
	s.height = 0
}

func (s *Surface) format(e *entry) string {
	var b strings.Builder
	switch e.role {
	case types.RoleUser:
		b.WriteString(userLabel.Render("You"))
	case types.RoleModel:
		b.WriteString(modelLabel.Render("MBBS AI"))
	case types.RoleError:
		b.WriteString(errorStyle.Render("Error: " + e.content))
		return b.String()
	}
	b.WriteString("\n")

	body := e.content
	if body != "" {
		if rendered, err := s.renderer.Render(body); err == nil {
			body = rendered
		}
	}
	b.WriteString(body)
	if e.streaming {
		b.WriteString(surface.Cursor)
	}
	if e.image != "" {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("[image saved to " + e.image + "]"))
	}
	if len(e.sources) > 0 {
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("Sources:"))
		for i, src := range e.sources {
			fmt.Fprintf(&b, "\n%d. %s %s", i+1, src.Title, dimStyle.Render("("+src.URI+")"))
		}
	}
	return b.String()
}

func (s *Surface) saveImage(id surface.ElementID, img types.InlineData) (string, error) {
	ext := ".img"
	if exts, err := mime.ExtensionsByType(img.MIMEType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	if err := os.MkdirAll(s.imageDir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.imageDir, "vai-"+string(id)+"-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(img.Data); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}
