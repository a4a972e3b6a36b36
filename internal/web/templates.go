package web

import (
	"embed"
	"html/template"
	"io/fs"
	"path"
)

//go:embed templates
var templatesFS embed.FS

// parsePages builds one template set per page, each combined with the shared
// base layout. Panics on a broken template, which surfaces at startup.
func parsePages() map[string]*template.Template {
	entries, err := fs.ReadDir(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	pages := make(map[string]*template.Template)
	for _, e := range entries {
		name := e.Name()
		if name == "base.html" {
			continue
		}
		pages[name] = template.Must(template.ParseFS(
			templatesFS,
			"templates/base.html",
			path.Join("templates", name),
		))
	}
	return pages
}
