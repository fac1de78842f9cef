// Package httpserver is the asynchronous request dispatcher of the
// controller.
//
// The HTTP engine's accept path never runs handler code. For every request
// that matches a dispatched route the engine calls the Server's accept
// callback, which takes an owned copy of the request (BeginAsync), wraps it
// in an AsyncRequest and pushes it onto a bounded queue with a short timeout.
// A fixed pool of workers pops requests, runs the route handler and marks
// each request complete exactly once. Requests that cannot be queued are
// aborted and the engine answers them with 503.
//
// # Lifecycle
//
//	Stopped -> Starting -> Running -> Stopping -> Stopped
//	any state -> Destroyed (Destroy, terminal)
//
//	engine := httpserver.NewChiEngine(httpserver.EngineDeps{Config: cfg.API, Logger: logger})
//	srv := httpserver.New(engine, httpserver.Options{Workers: 4, QueueSize: 16})
//	if err := srv.Start(ctx, routes); err != nil {
//	    return err
//	}
//	defer srv.Stop(context.Background())
//
// Stop drains the queue, waits for every worker and then stops the engine.
// Destroy drops whatever is still queued and does not wait.
//
// # Request ownership
//
// The engine owns every request it passes to the dispatcher. An exchange is
// released when its owner completes it, when the client goes away, when the
// engine's reclaim timeout elapses, or when the engine stops. A released
// exchange that was never completed is answered with 503, and any later
// writes by a worker are discarded with ErrReclaimed.
//
// # Websocket routes
//
// Each text frame on a websocket route is dispatched like a GET request. A
// frame starting with '/' names a full target ("/zone_open/get?id=2");
// anything else is taken as the query of the route itself. The response body
// goes back as a single text frame.
//
// # Thread Safety
//
// Server and ChiEngine are safe for concurrent use. A Request is owned by one
// goroutine at a time; its write methods are serialized internally so the
// engine can release it at any point.
package httpserver
