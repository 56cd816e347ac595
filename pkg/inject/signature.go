package inject

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
)

// Continuation is the post-yield part of a two-phase handler. It runs once,
// after the yielded value has been delivered (or delivery failed).
type Continuation func(ctx context.Context) error

// Mode tells how a handler produces its value.
type Mode int

const (
	// OneShot handlers return their final value.
	OneShot Mode = iota
	// TwoPhase handlers yield a value and a Continuation to run after delivery.
	TwoPhase
)

func (m Mode) String() string {
	if m == TwoPhase {
		return "two-phase"
	}
	return "one-shot"
}

var (
	errorType        = reflect.TypeFor[error]()
	continuationType = reflect.TypeFor[Continuation]()
	contextType      = reflect.TypeFor[context.Context]()
)

// ErrNotAFunction is returned by Scan for non-function values.
var ErrNotAFunction = errors.New("handler must be a function")

// Signature is the introspected shape of a handler, captured once.
type Signature struct {
	Name   string
	Mode   Mode
	Params []reflect.Type

	fn       reflect.Value
	hasValue bool
	hasError bool
}

// Scan introspects fn. Supported result shapes:
//
//	func(...)
//	func(...) error
//	func(...) T
//	func(...) (T, error)
//	func(...) (T, Continuation, error)
func Scan(fn any) (*Signature, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: got %T", ErrNotAFunction, fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("handler %s: variadic handlers are not supported", t)
	}

	sig := &Signature{
		Name:   funcName(v),
		Mode:   OneShot,
		Params: make([]reflect.Type, t.NumIn()),
		fn:     v,
	}
	for i := range t.NumIn() {
		sig.Params[i] = t.In(i)
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			sig.hasError = true
		} else if isContinuation(t.Out(0)) {
			return nil, fmt.Errorf("handler %s: a continuation needs a yielded value", sig.Name)
		} else {
			sig.hasValue = true
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("handler %s: second result must be error", sig.Name)
		}
		sig.hasValue, sig.hasError = true, true
	case 3:
		if !isContinuation(t.Out(1)) || t.Out(2) != errorType {
			return nil, fmt.Errorf("handler %s: three results must be (T, inject.Continuation, error)", sig.Name)
		}
		sig.hasValue, sig.hasError = true, true
		sig.Mode = TwoPhase
	default:
		return nil, fmt.Errorf("handler %s: too many results", sig.Name)
	}

	return sig, nil
}

// MustScan is like Scan but panics on error.
func MustScan(fn any) *Signature {
	sig, err := Scan(fn)
	if err != nil {
		panic(err)
	}
	return sig
}

// Call runs the handler with already resolved arguments and splits its results.
// Panics are not recovered here.
func (s *Signature) Call(args []reflect.Value) (value any, next Continuation, err error) {
	out := s.fn.Call(args)

	idx := 0
	if s.hasValue {
		value = out[0].Interface()
		idx++
	}
	if s.Mode == TwoPhase {
		next, _ = out[idx].Convert(continuationType).Interface().(Continuation)
		idx++
	}
	if s.hasError {
		if e := out[idx].Interface(); e != nil {
			err = e.(error)
		}
	}
	return value, next, err
}

// isContinuation accepts both Continuation and the bare func(context.Context) error.
func isContinuation(t reflect.Type) bool {
	return t == continuationType || (t.Kind() == reflect.Func && t.AssignableTo(continuationType))
}

func funcName(v reflect.Value) string {
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return v.Type().String()
}
