// Package attribute turns typed accessors into HTTP handlers.
//
// A handler bound with Get, GetIndexed, Set or SetIndexed reads its
// arguments from the request query ("id" selects a channel, "value" carries
// the new value), converts them with Convert and calls the accessor. The
// result is rendered as a one-key JSON object:
//
//	GET /target_temperature/get              -> {"target_temperature":21.5}
//	GET /zone_open/set?id=2&value=true       -> {"sucess":true}
//
// Failures fall in two tiers. Request errors (missing arguments, bad
// values, oversized or malformed queries) carry a Kind and render as 400
// with the kind's message and the expected argument names. Anything else,
// including a panicking accessor, renders as 500 with the error's message.
//
//	{"error":true,"uri":"/zone_open/set?id=2","message":"Required argument has not been provided","expected":["id","value"]}
package attribute
