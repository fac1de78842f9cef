package httpserver

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// defaultWSWriteWait bounds a single frame write when the websocket config
// leaves the pong timeout unset.
const defaultWSWriteWait = 10 * time.Second

// websocketHandler upgrades the connection and serves it on the calling
// goroutine. Every text frame is one request: a payload starting with '/'
// is a full target ("/path?query"), anything else is the query of the
// route's own URI. The response body is sent back as one text frame.
func (e *ChiEngine) websocketHandler(route Route) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(_ *http.Request) bool {
			// Origin checking is handled by CORS middleware
			return true
		},
	}
	if p := route.WebSocket.Subprotocol; p != "" {
		upgrader.Subprotocols = []string{p}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			e.logger.Error("websocket upgrade failed", "error", err)
			return
		}
		if !e.trackConn(conn) {
			conn.Close()
			return
		}
		defer e.untrackConn(conn)

		e.serveWebSocket(conn, r, route)
	}
}

func (e *ChiEngine) serveWebSocket(conn *websocket.Conn, r *http.Request, route Route) {
	defer conn.Close()

	if e.wsCfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(e.wsCfg.MaxMessageSize))
	}
	writeWait := e.wsCfg.GetPongTimeout()
	if writeWait <= 0 {
		writeWait = defaultWSWriteWait
	}

	// A peer that stops answering pings is dropped once its read deadline
	// passes. Every pong and every frame moves the deadline.
	pingInterval := e.wsCfg.GetPingInterval()
	extend := func() {
		if pingInterval > 0 {
			//nolint:errcheck // a failed deadline surfaces as a read error
			conn.SetReadDeadline(time.Now().Add(pingInterval + writeWait))
		}
	}
	extend()

	if route.WebSocket.HandleControlFrames {
		conn.SetPingHandler(func(data string) error {
			e.logger.Debug("websocket ping", "path", route.URI)
			extend()
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		})
	}
	conn.SetPongHandler(func(string) error {
		if route.WebSocket.HandleControlFrames {
			e.logger.Debug("websocket pong", "path", route.URI)
		}
		extend()
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	if pingInterval > 0 {
		go e.pingLoop(conn, pingInterval, writeWait, done)
	}

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				e.logger.Warn("websocket read error", "error", err)
			} else {
				e.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		extend()
		if msgType != websocket.TextMessage {
			continue
		}

		reply := e.serveFrame(r, route, payload)

		//nolint:errcheck // Best-effort deadline; write error caught below
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			return
		}
	}
}

// pingLoop pings the peer every interval until done is closed or a ping
// cannot be written. WriteControl is safe alongside the frame writes of
// serveWebSocket.
func (e *ChiEngine) pingLoop(conn *websocket.Conn, interval, writeWait time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				e.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}

// serveFrame runs one frame through the normal dispatch path and returns
// the response body.
func (e *ChiEngine) serveFrame(parent *http.Request, route Route, payload []byte) []byte {
	fw := &frameWriter{header: make(http.Header)}

	r, err := frameRequest(parent, route.URI, strings.TrimSpace(string(payload)))
	if err != nil {
		return []byte(http.StatusText(http.StatusBadRequest))
	}

	req := NewRequest(fw, r)
	if route.Synchronous {
		e.serveInline(req, route)
	} else {
		e.dispatch(req, route)
	}
	return fw.body.Bytes()
}

// frameRequest derives the request for one frame from the upgrade request.
func frameRequest(parent *http.Request, routeURI, target string) (*http.Request, error) {
	var u *url.URL
	if strings.HasPrefix(target, "/") {
		parsed, err := url.ParseRequestURI(target)
		if err != nil {
			return nil, err
		}
		u = parsed
	} else {
		u = &url.URL{Path: routeURI, RawQuery: strings.TrimPrefix(target, "?")}
	}

	ctx := context.WithValue(parent.Context(), ctxKeyRequestID, generateRequestID())
	r := parent.Clone(ctx)
	r.Method = http.MethodGet
	r.URL = u
	r.RequestURI = u.RequestURI()
	r.Body = http.NoBody
	return r, nil
}

// frameWriter collects the response to one frame.
type frameWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *frameWriter) Header() http.Header { return w.header }

func (w *frameWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *frameWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}

func (e *ChiEngine) trackConn(conn *websocket.Conn) bool {
	if e.stopped() {
		return false
	}
	e.connMu.Lock()
	e.conns[conn] = struct{}{}
	e.connMu.Unlock()
	return true
}

func (e *ChiEngine) untrackConn(conn *websocket.Conn) {
	e.connMu.Lock()
	delete(e.conns, conn)
	e.connMu.Unlock()
}

// closeWebSockets closes every hijacked connection. http.Server.Shutdown
// does not track them.
func (e *ChiEngine) closeWebSockets() {
	e.connMu.Lock()
	defer e.connMu.Unlock()

	for conn := range e.conns {
		deadline := time.Now().Add(time.Second)
		//nolint:errcheck // Best-effort close frame
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"), deadline)
		conn.Close()
		delete(e.conns, conn)
	}
}
