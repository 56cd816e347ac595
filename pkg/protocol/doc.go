/*
Package protocol implements the Tether wire codec.

Every frame is one JSON object. Peers send requests; the server sends events,
responses and response errors:

	{"id": "1", "type": "request", "endpoint": "echo", "data": {...}}
	{"type": "event", "kind": "init", "data": {...}}
	{"id": "1", "type": "response", "data": {...}}
	{"id": "1", "type": "response.error", "data": {"reason": "...", "code": "..."}}

Decoding only checks the envelope: request data stays opaque (json.RawMessage)
until an endpoint binds it to a concrete type.
*/
package protocol
