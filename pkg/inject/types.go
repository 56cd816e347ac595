package inject

import "encoding/json"

// Parameter types bound from the scope. They are distinct named types so a
// handler states exactly which piece of metadata it wants.
type (
	// Cookies are the cookies sent with the handshake.
	Cookies map[string]string
	// PathParams are the route parameters matched by the host router.
	PathParams map[string]string
	// RequestData is the opaque data of the request being served.
	RequestData json.RawMessage
	// RequestID is the correlation id of the request being served.
	RequestID string
	// SessionID is the server-assigned id of the connection.
	SessionID string
)

// Validator is implemented by request data types that check themselves after binding.
type Validator interface {
	Validate() error
}
