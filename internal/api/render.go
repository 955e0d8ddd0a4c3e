package api

import (
	"embed"
	"html/template"
	"regexp"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// About is the developer card in the sidebar. An empty Name hides it.
type About struct {
	Name     string
	Role     string
	Email    string
	LinkedIn string
}

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// renderMarkdown escapes text and renders the subset of markdown answers
// use: **bold** and line breaks.
func renderMarkdown(text string) template.HTML {
	escaped := template.HTMLEscapeString(text)
	escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return template.HTML(escaped)
}

func loadTemplates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"markdown": renderMarkdown,
	}).ParseFS(templateFS, "templates/*.html"))
}
