package terminal

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-wellness/pkg/core/types"
	"github.com/vango-go/vai-wellness/pkg/surface"
)

func TestSurface_StreamingRerender(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	id := s.AddMessage(types.RoleModel, "", true)
	s.UpdateMessage(id, "Hello", true)
	s.UpdateMessage(id, "Hello there", false)

	out := buf.String()
	assert.Contains(t, out, "Hello"+surface.Cursor)
	assert.True(t, strings.HasSuffix(strings.TrimRight(out, "\n"), "Hello there"))
	assert.Contains(t, out, "\x1b[2K", "in-place redraw clears lines")
}

func TestSurface_SourcesAfterContent(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	id := s.AddMessage(types.RoleModel, "Walk daily.", false)
	s.ShowSources(id, []types.Source{{URI: "https://who.int", Title: "WHO"}})

	out := buf.String()
	last := out[strings.LastIndex(out, "Walk daily."):]
	assert.Contains(t, last, "Sources:")
	assert.Contains(t, last, "1. WHO")
	assert.Less(t, strings.Index(last, "Walk daily."), strings.Index(last, "Sources:"))
}

func TestSurface_ErrorAndPrompt(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.AddError("Could not reach the service.")
	assert.Contains(t, buf.String(), "Error: Could not reach the service.")

	s.SetBusy(true)
	assert.True(t, s.Busy())
	assert.Contains(t, s.Prompt(), "thinking")
	s.SetBusy(false)
	s.SetInputActive(true)
	assert.Contains(t, s.Prompt(), "+")
}

func TestSurface_RemoveUnknownIsNoop(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.Remove("missing")
	s.UpdateMessage("missing", "x", false)
	assert.Empty(t, buf.String())
}

func TestSurface_ShowImageSavesFile(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	s := New(&buf, WithImageDir(dir))
	id := s.AddMessage(types.RoleModel, "Generating image...", true)
	s.ShowImage(id, types.InlineData{MIMEType: "image/png", Data: []byte{1, 2, 3}}, "A calm lake")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".png"))
	assert.Contains(t, buf.String(), "image saved to")
}
