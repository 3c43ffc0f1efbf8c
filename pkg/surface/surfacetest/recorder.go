// Package surfacetest provides an in-memory surface.Surface for tests.
package surfacetest

import (
	"fmt"
	"sync"

	"github.com/vango-go/vai-wellness/pkg/core/types"
	"github.com/vango-go/vai-wellness/pkg/surface"
)

// Entry is the recorded state of one element.
type Entry struct {
	ID        surface.ElementID
	Role      types.Role
	Content   string
	Streaming bool
	Sources   []types.Source
	Image     *types.InlineData
	// Renders counts AddMessage and UpdateMessage calls for the entry.
	Renders int
}

// Recorder records surface calls.
type Recorder struct {
	mu      sync.Mutex
	next    int
	order   []surface.ElementID
	entries map[surface.ElementID]*Entry
	ops     []string
	scrolls int
	busy    []bool
	active  []bool
}

var _ surface.Surface = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{entries: make(map[surface.ElementID]*Entry)}
}

func (r *Recorder) add(role types.Role, content string, streaming bool, op string) surface.ElementID {
	r.next++
	id := surface.ElementID(fmt.Sprintf("el-%d", r.next))
	r.order = append(r.order, id)
	r.entries[id] = &Entry{ID: id, Role: role, Content: content, Streaming: streaming, Renders: 1}
	r.ops = append(r.ops, fmt.Sprintf("%s %s %s", op, id, role))
	return id
}

// AddMessage implements surface.Surface.
func (r *Recorder) AddMessage(role types.Role, markdown string, streaming bool) surface.ElementID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(role, markdown, streaming, "add")
}

// UpdateMessage implements surface.Surface.
func (r *Recorder) UpdateMessage(id surface.ElementID, markdown string, streaming bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.Content = markdown
	e.Streaming = streaming
	e.Renders++
	r.ops = append(r.ops, fmt.Sprintf("update %s", id))
}

// ShowSources implements surface.Surface.
func (r *Recorder) ShowSources(id surface.ElementID, sources []types.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.Sources = append([]types.Source(nil), sources...)
		r.ops = append(r.ops, fmt.Sprintf("sources %s", id))
	}
}

// ShowImage implements surface.Surface.
func (r *Recorder) ShowImage(id surface.ElementID, img types.InlineData, alt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.Image = &img
		e.Content = alt
		e.Streaming = false
		r.ops = append(r.ops, fmt.Sprintf("image %s", id))
	}
}

// AddError implements surface.Surface.
func (r *Recorder) AddError(text string) surface.ElementID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(types.RoleError, text, false, "error")
}

// Remove implements surface.Surface.
func (r *Recorder) Remove(id surface.ElementID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.ops = append(r.ops, fmt.Sprintf("remove %s", id))
}

// Clear implements surface.Surface.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.entries = make(map[surface.ElementID]*Entry)
	r.ops = append(r.ops, "clear")
}

// ScrollToBottom implements surface.Surface.
func (r *Recorder) ScrollToBottom() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrolls++
}

// SetBusy implements surface.Surface.
func (r *Recorder) SetBusy(busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = append(r.busy, busy)
}

// SetInputActive implements surface.Surface.
func (r *Recorder) SetInputActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = append(r.active, active)
}

// Entries returns the current entries in display order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// Entry returns the entry with id.
func (r *Recorder) Entry(id surface.ElementID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Errors returns the content of every error entry.
func (r *Recorder) Errors() []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Role == types.RoleError {
			out = append(out, e.Content)
		}
	}
	return out
}

// Ops returns the operation log.
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

// Scrolls returns the number of ScrollToBottom calls.
func (r *Recorder) Scrolls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scrolls
}

// BusyHistory returns every SetBusy value in order.
func (r *Recorder) BusyHistory() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.busy...)
}

// ActiveHistory returns every SetInputActive value in order.
func (r *Recorder) ActiveHistory() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.active...)
}
