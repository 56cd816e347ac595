package protocol

import (
	"encoding/json"

	"github.com/aretw0/tether/pkg/domain"
)

// Frame types.
const (
	TypeRequest       = "request"
	TypeEvent         = "event"
	TypeResponse      = "response"
	TypeResponseError = "response.error"
)

// Request is an inbound call correlated by ID.
type Request struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Endpoint string          `json:"endpoint"`
	Data     json.RawMessage `json:"data"`
}

// Event is an unsolicited, uncorrelated outbound message.
type Event struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Response carries the value produced by an endpoint.
type Response struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ResponseError carries a recoverable failure raised by an endpoint.
type ResponseError struct {
	ID   string              `json:"id"`
	Type string              `json:"type"`
	Data domain.ErrorPayload `json:"data"`
}
