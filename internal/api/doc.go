// Package api builds the controller's route table.
//
// Every device attribute is bound through the attribute dispatcher and
// served by the async dispatch server. The table also carries the
// operational routes:
//
//	/health        synchronous, component health
//	/metrics       synchronous, runtime, dispatch, control and MQTT counters
//	/audit/list    dispatched, recent setter commands
//	/ws            websocket; each frame names a GET route ("/temperature/get?id=1")
//	/              synchronous, HTML listing of the routes
//
// Usage:
//
//	a, err := api.New(api.Deps{Status: status, Dispatcher: dispatcher, Server: srv})
//	if err != nil {
//	    return err
//	}
//	if err := srv.Start(ctx, a.Routes()); err != nil {
//	    return err
//	}
package api
