package inject

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sync"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/aretw0/tether/pkg/scope"
)

// ErrUnresolvable is returned when a parameter cannot be bound.
var ErrUnresolvable = errors.New("unresolvable parameter")

var (
	scopeType       = reflect.TypeFor[*scope.Scope]()
	stackType       = reflect.TypeFor[*Stack]()
	sendEventType   = reflect.TypeFor[domain.SendEvent]()
	sendErrorType   = reflect.TypeFor[domain.SendError]()
	headerType      = reflect.TypeFor[http.Header]()
	queryType       = reflect.TypeFor[url.Values]()
	cookiesType     = reflect.TypeFor[Cookies]()
	pathParamsType  = reflect.TypeFor[PathParams]()
	requestDataType = reflect.TypeFor[RequestData]()
	requestIDType   = reflect.TypeFor[RequestID]()
	sessionIDType   = reflect.TypeFor[SessionID]()
	transportType   = reflect.TypeFor[ports.Transport]()
	cleanupType     = reflect.TypeFor[func()]()
)

type provider struct {
	name     string
	fn       reflect.Value
	params   []reflect.Type
	hasClean bool
	hasError bool
}

// Container is the default resolution engine. Providers are keyed by the
// type they produce; a later Provide for the same type shadows the earlier one.
// Safe for concurrent use.
type Container struct {
	mu        sync.RWMutex
	providers map[reflect.Type]*provider
}

// NewContainer creates a container with no custom providers.
func NewContainer() *Container {
	return &Container{
		providers: make(map[reflect.Type]*provider),
	}
}

// Provide registers a provider function. Supported shapes:
//
//	func(...) T
//	func(...) (T, error)
//	func(...) (T, func(), error)
//
// Provider parameters are resolved like handler parameters. The cleanup of a
// three-result provider is pushed on the invocation's Stack.
func (c *Container) Provide(fn any) error {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Errorf("%w: provider got %T", ErrNotAFunction, fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return fmt.Errorf("provider %s: variadic providers are not supported", t)
	}

	p := &provider{name: funcName(v), fn: v, params: make([]reflect.Type, t.NumIn())}
	for i := range t.NumIn() {
		p.params[i] = t.In(i)
	}

	switch {
	case t.NumOut() == 1 && t.Out(0) != errorType:
	case t.NumOut() == 2 && t.Out(1) == errorType:
		p.hasError = true
	case t.NumOut() == 3 && t.Out(1) == cleanupType && t.Out(2) == errorType:
		p.hasClean, p.hasError = true, true
	default:
		return fmt.Errorf("provider %s: results must be T, (T, error) or (T, func(), error)", p.name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[t.Out(0)] = p
	return nil
}

// MustProvide is like Provide but panics on error.
func (c *Container) MustProvide(fn any) {
	if err := c.Provide(fn); err != nil {
		panic(err)
	}
}

func (c *Container) lookup(t reflect.Type) (*provider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[t]
	return p, ok
}

// Resolve binds every parameter of sig. Resources opened by providers are
// pushed on stack; on error the caller is responsible for closing it.
// Each type is resolved at most once per call.
func (c *Container) Resolve(ctx context.Context, sig *Signature, s *scope.Scope, stack *Stack) ([]reflect.Value, error) {
	r := &resolution{
		c:        c,
		ctx:      ctx,
		scope:    s,
		stack:    stack,
		cache:    make(map[reflect.Type]reflect.Value),
		visiting: make(map[reflect.Type]bool),
	}
	return r.all(sig.Name, sig.Params)
}

type resolution struct {
	c        *Container
	ctx      context.Context
	scope    *scope.Scope
	stack    *Stack
	cache    map[reflect.Type]reflect.Value
	visiting map[reflect.Type]bool
}

func (r *resolution) all(owner string, params []reflect.Type) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(params))
	for i, t := range params {
		v, err := r.value(t)
		if err != nil {
			var rec domain.RecoverableError
			if errors.As(err, &rec) {
				return nil, err
			}
			return nil, fmt.Errorf("%s: parameter %d (%s): %w", owner, i, t, err)
		}
		args[i] = v
	}
	return args, nil
}

func (r *resolution) value(t reflect.Type) (reflect.Value, error) {
	if v, ok := r.cache[t]; ok {
		return v, nil
	}
	v, err := r.resolve(t)
	if err != nil {
		return reflect.Value{}, err
	}
	r.cache[t] = v
	return v, nil
}

func (r *resolution) resolve(t reflect.Type) (reflect.Value, error) {
	switch t {
	case contextType:
		return reflect.ValueOf(&r.ctx).Elem(), nil
	case scopeType:
		return reflect.ValueOf(r.scope), nil
	case stackType:
		return reflect.ValueOf(r.stack), nil
	}

	if p, ok := r.c.lookup(t); ok {
		return r.provide(t, p)
	}

	switch t {
	case sendEventType:
		return reflect.ValueOf(r.scope.SendEvent()), nil
	case sendErrorType:
		return reflect.ValueOf(r.scope.SendError()), nil
	case headerType:
		return reflect.ValueOf(r.scope.Headers()), nil
	case queryType:
		return reflect.ValueOf(r.scope.QueryParams()), nil
	case cookiesType:
		return reflect.ValueOf(Cookies(r.scope.Cookies())), nil
	case pathParamsType:
		return reflect.ValueOf(PathParams(r.scope.PathParams())), nil
	case requestDataType:
		data, err := rawRequestData(r.scope)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(RequestData(data)), nil
	case requestIDType:
		return r.stringKey(domain.KeyRequestID, t)
	case sessionIDType:
		return r.stringKey(domain.KeySessionID, t)
	case transportType:
		tr, ok := r.scope.Get(domain.KeyTransport).(ports.Transport)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: no transport in scope", ErrUnresolvable)
		}
		return reflect.ValueOf(&tr).Elem(), nil
	}

	if bindable(t) {
		return bind(r.scope, t)
	}
	return reflect.Value{}, fmt.Errorf("%w: no provider for %s", ErrUnresolvable, t)
}

func (r *resolution) stringKey(key string, t reflect.Type) (reflect.Value, error) {
	s, ok := r.scope.Get(key).(string)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s not in scope", ErrUnresolvable, key)
	}
	return reflect.ValueOf(s).Convert(t), nil
}

func (r *resolution) provide(t reflect.Type, p *provider) (reflect.Value, error) {
	if r.visiting[t] {
		return reflect.Value{}, fmt.Errorf("%w: dependency cycle through %s", ErrUnresolvable, t)
	}
	r.visiting[t] = true
	defer delete(r.visiting, t)

	args, err := r.all(p.name, p.params)
	if err != nil {
		return reflect.Value{}, err
	}

	out := p.fn.Call(args)
	if p.hasError {
		if e := out[len(out)-1].Interface(); e != nil {
			return reflect.Value{}, e.(error)
		}
	}
	if p.hasClean {
		if cleanup, _ := out[1].Interface().(func()); cleanup != nil {
			r.stack.Defer(cleanup)
		}
	}
	return out[0], nil
}
