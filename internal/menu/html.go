package menu

import (
	"bytes"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// pageData is what templates/index.html renders
type pageData struct {
	Records  []Record
	Batch    *Batch
	Uploaded bool
	Error    string
}

// renderPage executes the index template into a buffer first so a template
// failure can still become a clean 500
func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		slog.Error("Error rendering page", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
