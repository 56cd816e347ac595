package domain

// Well-known scope keys. The engine guarantees the first six are present
// before any handler runs.
const (
	KeyHeaders     = "headers"
	KeyCookies     = "cookies"
	KeyQueryParams = "query_params"
	KeyPathParams  = "path_params"
	KeySendEvent   = "send_event"
	KeySendError   = "send_error"

	// KeyContext exposes the connection scope itself.
	KeyContext = "context"
	// KeyTransport exposes the raw transport handle ("ws").
	KeyTransport = "ws"
	// KeyRequestData holds the opaque data of the request being served.
	KeyRequestData = "request_data"
	// KeyRequestID holds the correlation id of the request being served.
	KeyRequestID = "request_id"
	// KeySessionID holds the server-assigned session id.
	KeySessionID = "session_id"
)

// Built-in error codes sent to the peer.
const (
	CodeValidation      = "validation-error"
	CodeInvalidEndpoint = "invalid-endpoint"
	CodeInternal        = "internal-error"
)

// Built-in event kinds.
const (
	EventInit  = "init"
	EventError = "error"
)
