package render

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/russross/blackfriday"

	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// HTML renders markdown to an HTML fragment.
func HTML(markdown string) template.HTML {
	return template.HTML(blackfriday.MarkdownCommon([]byte(markdown)))
}

var exportTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.msg { border-radius: 0.5rem; padding: 0.75rem 1rem; margin: 0.75rem 0; }
.user { background: #e8f5e9; }
.model { background: #f5f5f5; }
.role { font-size: 0.8rem; font-weight: 600; color: #555; }
img { max-width: 100%; border-radius: 0.25rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p><small>Exported {{.Exported.Format "2006-01-02 15:04 MST"}}</small></p>
{{range .Messages}}<div class="msg {{.Role}}">
<div class="role">{{.Label}}</div>
{{range .Images}}<img src="{{.}}" alt="attachment">
{{end}}{{.Body}}
</div>
{{end}}</body>
</html>
`))

type exportMessage struct {
	Role   string
	Label  string
	Images []template.URL
	Body   template.HTML
}

// ExportHTML writes history as a standalone HTML document. Images are
// embedded as data URIs.
func ExportHTML(w io.Writer, title string, history []types.Message) error {
	msgs := make([]exportMessage, 0, len(history))
	for _, m := range history {
		em := exportMessage{Role: string(m.Role), Label: roleLabel(m.Role), Body: HTML(m.Text())}
		for _, img := range m.Images() {
			em.Images = append(em.Images, template.URL(
				"data:"+img.MIMEType+";base64,"+base64.StdEncoding.EncodeToString(img.Data)))
		}
		msgs = append(msgs, em)
	}
	err := exportTemplate.Execute(w, struct {
		Title    string
		Exported time.Time
		Messages []exportMessage
	}{title, time.Now(), msgs})
	if err != nil {
		return fmt.Errorf("render: export: %w", err)
	}
	return nil
}

func roleLabel(r types.Role) string {
	switch r {
	case types.RoleUser:
		return "You"
	case types.RoleModel:
		return "MBBS AI"
	default:
		return string(r)
	}
}
