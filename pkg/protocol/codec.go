package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/tidwall/gjson"
)

// DecodeRequest validates the envelope of raw and returns the request.
// raw is valid iff it is a JSON object with a string "id", "type" equal to
// "request", a string "endpoint", and a "data" key (null is allowed).
// Anything else yields domain.ErrInvalidRequest.
func DecodeRequest(raw []byte) (Request, error) {
	if !gjson.ValidBytes(raw) {
		return Request{}, fmt.Errorf("%w: malformed json", domain.ErrInvalidRequest)
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Request{}, fmt.Errorf("%w: frame is not an object", domain.ErrInvalidRequest)
	}

	fields := root.Map()
	id, ok := fields["id"]
	if !ok || id.Type != gjson.String {
		return Request{}, fmt.Errorf("%w: id must be a string", domain.ErrInvalidRequest)
	}
	typ, ok := fields["type"]
	if !ok || typ.Type != gjson.String || typ.Str != TypeRequest {
		return Request{}, fmt.Errorf("%w: type must be %q", domain.ErrInvalidRequest, TypeRequest)
	}
	endpoint, ok := fields["endpoint"]
	if !ok || endpoint.Type != gjson.String {
		return Request{}, fmt.Errorf("%w: endpoint must be a string", domain.ErrInvalidRequest)
	}
	data, ok := fields["data"]
	if !ok {
		return Request{}, fmt.Errorf("%w: data is required", domain.ErrInvalidRequest)
	}

	return Request{
		ID:       id.Str,
		Type:     TypeRequest,
		Endpoint: endpoint.Str,
		Data:     json.RawMessage(data.Raw),
	}, nil
}

// EncodeEvent builds an event envelope.
func EncodeEvent(kind string, data any) Event {
	return Event{Type: TypeEvent, Kind: kind, Data: data}
}

// EncodeErrorEvent builds an "error" event carrying {reason, code}.
func EncodeErrorEvent(reason, code string) Event {
	return EncodeEvent(domain.EventError, domain.ErrorPayload{Reason: reason, Code: code})
}

// EncodePayloadEvent builds an "error" event from a prepared payload.
func EncodePayloadEvent(payload domain.ErrorPayload) Event {
	return EncodeEvent(domain.EventError, payload)
}

// EncodeResponse builds a response correlated to id.
func EncodeResponse(id string, data any) Response {
	return Response{ID: id, Type: TypeResponse, Data: data}
}

// EncodeErrorResponse builds a response error correlated to id.
func EncodeErrorResponse(id string, payload domain.ErrorPayload) ResponseError {
	return ResponseError{ID: id, Type: TypeResponseError, Data: payload}
}

// Marshal serializes an envelope into one frame.
func Marshal(envelope any) ([]byte, error) {
	frame, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return frame, nil
}
