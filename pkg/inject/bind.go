package inject

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/scope"
	"github.com/mitchellh/mapstructure"
)

// bindable reports whether t can be decoded from request data.
func bindable(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

// Bind decodes the request data in s into a T.
func Bind[T any](s *scope.Scope) (T, error) {
	var zero T
	v, err := bind(s, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	return v.Interface().(T), nil
}

func bind(s *scope.Scope, t reflect.Type) (reflect.Value, error) {
	raw, ok := s.Lookup(domain.KeyRequestData)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s needs request data", ErrUnresolvable, t)
	}

	input, err := decodeInput(raw)
	if err != nil {
		return reflect.Value{}, invalidData(err)
	}

	base := t
	if t.Kind() == reflect.Pointer {
		base = t.Elem()
	}
	target := reflect.New(base)

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Squash:  true,
		Result:  target.Interface(),
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return reflect.Value{}, fmt.Errorf("failed to build decoder for %s: %w", t, err)
	}
	if err := dec.Decode(input); err != nil {
		return reflect.Value{}, invalidData(err)
	}

	if v, ok := target.Interface().(Validator); ok {
		if err := v.Validate(); err != nil {
			var rec domain.RecoverableError
			if errors.As(err, &rec) {
				return reflect.Value{}, err
			}
			return reflect.Value{}, invalidData(err)
		}
	}

	if t.Kind() == reflect.Pointer {
		return target, nil
	}
	return target.Elem(), nil
}

// decodeInput turns raw JSON into generic values, keeping numbers exact.
func decodeInput(raw any) (any, error) {
	var data []byte
	switch d := raw.(type) {
	case json.RawMessage:
		data = d
	case RequestData:
		data = d
	case []byte:
		data = d
	default:
		return raw, nil
	}
	if len(data) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func rawRequestData(s *scope.Scope) (json.RawMessage, error) {
	raw, ok := s.Lookup(domain.KeyRequestData)
	if !ok {
		return nil, fmt.Errorf("%w: no request data in scope", ErrUnresolvable)
	}
	switch d := raw.(type) {
	case json.RawMessage:
		return d, nil
	case RequestData:
		return json.RawMessage(d), nil
	case []byte:
		return d, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request data: %w", err)
	}
	return data, nil
}

func invalidData(err error) error {
	return domain.NewRequestError("Invalid request data: "+err.Error(), domain.CodeValidation)
}
