package api

import (
	"net/http"

	"github.com/nerrad567/floorheat-core/internal/httpserver"
)

// handleFrame serves one websocket frame. The frame's path selects the GET
// route that answers it; a frame that only carries a query targets /ws
// itself and is rejected.
func (a *API) handleFrame(req *httpserver.Request, _ any) error {
	route, ok := a.multiplex[req.Path()]
	if !ok {
		return writeError(req, http.StatusNotFound, ErrCodeNotFound, "no route for "+req.Path())
	}
	return route.Handler(req, route.UserData)
}
