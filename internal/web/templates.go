package web

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS,
		"templates/base.html",
		"templates/public/*.html",
		"templates/admin/*.html",
	)
}

func staticAssets() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}

// staticVersion derives a cache-busting token from the embedded asset body.
// Embedded files carry no modification time, so the content hash stands in.
func staticVersion(name string) string {
	data, err := staticFS.ReadFile("static/" + name)
	if err != nil {
		return "1"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:4])
}

// page is the template data every view shares.
type page struct {
	CSSVersion string
	JSVersion  string
}

func (h *handlers) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.log.Errorf("rendering %s: %v", name, err)
	}
}
