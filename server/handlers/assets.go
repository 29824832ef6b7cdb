package handlers

import (
	"embed"
	"html"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
)

var (
	//go:embed web/templates/index.html
	indexHTML string

	//go:embed web/static
	staticFiles embed.FS

	indexTemplate = template.Must(template.New("index").Parse(indexHTML))
)

// Static serves the page's scripts and styles under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFiles, "web/static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// nl2br turns newlines into line breaks.
func nl2br(s string) string {
	return strings.ReplaceAll(s, "\n", "<br>")
}

// historyEntry is one rendered chat history entry.
type historyEntry struct {
	IsUser  bool
	Content template.HTML
}

type indexData struct {
	Role    string
	Roles   []string
	History []historyEntry
}

// renderContent escapes user text. Assistant content is already HTML, the
// formatter's output or the welcome markup.
func renderContent(isUser bool, content string) template.HTML {
	if isUser {
		content = html.EscapeString(content)
	}
	return template.HTML(nl2br(content))
}
