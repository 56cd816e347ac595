package inject

import (
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/scope"
)

// FromHeader returns a provider binding the named handshake header to T.
// A missing header is reported to the peer as a validation error.
//
//	type Token string
//	container.MustProvide(inject.FromHeader[Token]("Authorization"))
func FromHeader[T ~string](name string) func(*scope.Scope) (T, error) {
	return func(s *scope.Scope) (T, error) {
		v := s.Headers().Get(name)
		if v == "" {
			return "", missing("header", name)
		}
		return T(v), nil
	}
}

// FromCookie returns a provider binding the named cookie to T.
func FromCookie[T ~string](name string) func(*scope.Scope) (T, error) {
	return func(s *scope.Scope) (T, error) {
		v, ok := s.Cookies()[name]
		if !ok {
			return "", missing("cookie", name)
		}
		return T(v), nil
	}
}

// FromQuery returns a provider binding the named query parameter to T.
func FromQuery[T ~string](name string) func(*scope.Scope) (T, error) {
	return func(s *scope.Scope) (T, error) {
		q := s.QueryParams()
		if !q.Has(name) {
			return "", missing("query parameter", name)
		}
		return T(q.Get(name)), nil
	}
}

// FromPath returns a provider binding the named path parameter to T.
func FromPath[T ~string](name string) func(*scope.Scope) (T, error) {
	return func(s *scope.Scope) (T, error) {
		v, ok := s.PathParams()[name]
		if !ok {
			return "", missing("path parameter", name)
		}
		return T(v), nil
	}
}

func missing(what, name string) error {
	return domain.NewRequestError("Missing "+what+": "+name, domain.CodeValidation)
}
