package httpserver

import (
	"html"
	"net/http"
	"strings"
)

// ShowRoutes renders the active route table as an HTML page listing each
// route's URI and method. Register it as a synchronous route.
func (s *Server) ShowRoutes(req *Request, _ any) error {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>Overview of api endpoints</title></head><body>")
	for _, r := range s.Routes() {
		uri := html.EscapeString(r.URI)
		b.WriteString(`<p><a href="`)
		b.WriteString(uri)
		b.WriteString(`">`)
		b.WriteString(uri)
		b.WriteString("</a> (")
		b.WriteString(r.method())
		b.WriteString(")</p>")
	}
	b.WriteString("</body></html>")

	req.Header().Set("Content-Type", "text/html; charset=utf-8")
	req.WriteHeader(http.StatusOK)
	_, err := req.Write([]byte(b.String()))
	return err
}
