/*
Package tether is a WebSocket RPC session engine with dependency injection.

A Domain groups the handlers served on one route. Each connection gets its own
session: an optional entry handler runs when the connection opens and its value
is sent as the "init" event; requests name an endpoint and are served
concurrently, each answered with a response correlated by id; an optional exit
handler runs once after the peer goes away.

# Wire protocol

Every frame is a JSON object.

	{"id": "1", "type": "request", "endpoint": "add", "data": {"a": 1, "b": 2}}
	{"id": "1", "type": "response", "data": 3}
	{"id": "1", "type": "response.error", "data": {"reason": "...", "code": "..."}}
	{"type": "event", "kind": "init", "data": ...}
	{"type": "event", "kind": "error", "data": {"reason": "Invalid endpoint", "code": "invalid-endpoint"}}

Malformed frames produce a "validation-error" event, unknown endpoints an
"invalid-endpoint" event, and unexpected failures an "internal-error" event
that never carries details.

# Handlers

Handlers are plain functions. Their parameters are resolved by type: the
context, the connection scope, send_event/send_error capabilities, handshake
metadata, custom providers, and any struct, map or slice bound from the
request data.

	d := tether.New("/ws")
	d.Endpoint("add", func(in struct {
		A int `json:"a"`
		B int `json:"b"`
	}) int {
		return in.A + in.B
	})

Returning a *domain.RequestError sends a correlated response.error. A handler
returning (T, inject.Continuation, error) is two-phase: T is delivered first,
then the continuation runs and releases the resources it opened.

# Serving

	r := chi.NewRouter()
	d.Mount(r)
	http.ListenAndServe(":8080", r)
*/
package tether
