package inject

import (
	"errors"
	"sync"

	"github.com/aretw0/tether/pkg/domain"
)

// Stack collects the releases opened by one invocation and runs them in
// reverse order, each exactly once.
type Stack struct {
	mu       sync.Mutex
	releases []func() error
	closed   bool
}

// NewStack creates an empty resource stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push registers a release. Once the stack is closed, release runs immediately.
func (s *Stack) Push(release func() error) error {
	if release == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return runRelease(release)
	}
	s.releases = append(s.releases, release)
	s.mu.Unlock()
	return nil
}

// Defer registers a release that cannot fail.
func (s *Stack) Defer(fn func()) {
	if fn == nil {
		return
	}
	_ = s.Push(func() error {
		fn()
		return nil
	})
}

// Len returns the number of pending releases.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}

// Close unwinds the stack in reverse order. Every release runs even if an
// earlier one fails or panics; failures are joined. Later calls are no-ops.
func (s *Stack) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	var errs []error
	for i := len(releases) - 1; i >= 0; i-- {
		if err := runRelease(releases[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runRelease(release func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewPanicFault("release", r)
		}
	}()
	return release()
}
