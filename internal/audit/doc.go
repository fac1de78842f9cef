// Package audit records every setter command the controller receives, over
// HTTP or MQTT, into the SQLite audit_logs table and lists them back.
//
// Commands are handed to a Recorder from the request path without blocking;
// the Recorder writes them from its own goroutine. When its buffer is full
// entries are dropped and counted rather than slowing down the dispatcher.
package audit
