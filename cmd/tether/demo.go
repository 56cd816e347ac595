package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aretw0/tether"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/inject"
	"github.com/aretw0/tether/pkg/scope"
)

const counterKey = "demo.counter"

type counter struct{ atomic.Int64 }

type arith struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type notice struct {
	Message string `json:"message"`
}

func (n notice) Validate() error {
	if n.Message == "" {
		return errors.New("message is required")
	}
	return nil
}

type ticks struct {
	Count    int           `json:"count"`
	Interval time.Duration `json:"interval"`
}

// registerDemo installs the handlers served by "tether serve".
func registerDemo(d *tether.Domain, logger *slog.Logger) error {
	err := d.Provide(func(s *scope.Scope) *counter {
		return s.SetDefault(counterKey, &counter{}).(*counter)
	})
	if err != nil {
		return err
	}

	if err := d.Enter(func(id inject.SessionID, h http.Header) map[string]any {
		return map[string]any{
			"session_id": string(id),
			"user_agent": h.Get("User-Agent"),
			"endpoints":  d.Endpoints(),
		}
	}); err != nil {
		return err
	}

	if err := d.Exit(func(id inject.SessionID, c *counter) {
		logger.Info("session finished", "session_id", string(id), "count", c.Load())
	}); err != nil {
		return err
	}

	endpoints := map[string]any{
		"echo": func(data inject.RequestData) json.RawMessage {
			return json.RawMessage(data)
		},
		"add": func(in arith) float64 {
			return in.A + in.B
		},
		"divide": func(in arith) (float64, error) {
			if in.B == 0 {
				return 0, domain.NewRequestError("division by zero", "E_DIV_ZERO")
			}
			return in.A / in.B, nil
		},
		"count": func(c *counter) int64 {
			return c.Add(1)
		},
		"notify": func(ctx context.Context, send domain.SendEvent, in notice) bool {
			_ = send(ctx, "notice", in.Message)
			return true
		},
		"time": func() time.Time {
			return time.Now().UTC()
		},
		// ticks answers first, then streams "tick" events from its continuation.
		"ticks": func(send domain.SendEvent, in ticks) (int, inject.Continuation, error) {
			if in.Count <= 0 || in.Count > 100 {
				return 0, nil, domain.NewRequestError("count must be between 1 and 100", domain.CodeValidation)
			}
			return in.Count, func(ctx context.Context) error {
				for i := range in.Count {
					if i > 0 && in.Interval > 0 {
						select {
						case <-ctx.Done():
							return ctx.Err()
						case <-time.After(in.Interval):
						}
					}
					_ = send(ctx, "tick", i+1)
				}
				return nil
			}, nil
		},
	}
	for name, fn := range endpoints {
		if err := d.Endpoint(name, fn); err != nil {
			return err
		}
	}
	return nil
}
