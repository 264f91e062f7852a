package webservice

import "net/http"

// HTTPServer returns the items HTTP server for testing purposes.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}
