package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-wellness/pkg/core/types"
)

func TestTerminal_Render(t *testing.T) {
	r, err := NewTerminal("dark", 60)
	require.NoError(t, err)
	assert.Equal(t, "dark", r.Style())

	out, err := r.Render("# Sleep\n\nKeep a **regular** schedule.")
	require.NoError(t, err)
	assert.Contains(t, out, "Sleep")
	assert.Contains(t, out, "regular")
	assert.False(t, strings.HasPrefix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestPlain(t *testing.T) {
	out, err := Plain{}.Render("**x**")
	require.NoError(t, err)
	assert.Equal(t, "**x**", out)
}

func TestHTML(t *testing.T) {
	got := string(HTML("Drink *water*"))
	assert.Contains(t, got, "<em>water</em>")
}

func TestExportHTML(t *testing.T) {
	user := types.NewMessage(types.RoleUser,
		types.InlinePart("image/png", []byte{0x89, 'P', 'N', 'G'}),
		types.TextPart("What is in <this> picture?"))
	model := types.NewMessage(types.RoleModel, types.TextPart("A **bowl** of fruit."))

	var buf bytes.Buffer
	require.NoError(t, ExportHTML(&buf, "Wellness chat", []types.Message{user, model}))
	out := buf.String()

	assert.Contains(t, out, "<title>Wellness chat</title>")
	assert.Contains(t, out, `src="data:image/png;base64,iVBORw=="`)
	assert.Contains(t, out, "<strong>bowl</strong>")
	assert.Contains(t, out, `class="msg user"`)
	assert.Contains(t, out, "MBBS AI")
}
