package tether

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/adapters/websocket"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/inject"
	"github.com/aretw0/tether/pkg/invoke"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/aretw0/tether/pkg/registry"
	"github.com/aretw0/tether/pkg/session"
	"github.com/go-chi/chi/v5"
)

// Version is the library version reported by the CLI and /info.
const Version = "0.1.0"

// DefaultPath is used when New is given an empty path.
const DefaultPath = "/ws"

// Domain groups the handlers served on one WebSocket route.
// It is the high-level entry point for the library: register handlers, then
// mount it on a router or serve transports directly.
type Domain struct {
	Path string

	registry  *registry.Registry
	container *inject.Container
	logger    *slog.Logger

	sessionOpts   []session.Option
	transportOpts []websocket.Option

	once    sync.Once
	manager *session.Manager
}

// Option defines a functional option for configuring the Domain.
type Option func(*Domain)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Domain) {
		d.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(d *Domain) {
		d.sessionOpts = append(d.sessionOpts, session.WithLifecycleHooks(hooks))
	}
}

// WithDirectory advertises live sessions in dir.
func WithDirectory(dir ports.SessionDirectory) Option {
	return func(d *Domain) {
		d.sessionOpts = append(d.sessionOpts, session.WithDirectory(dir))
	}
}

// WithSessionOptions passes options straight to the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(d *Domain) {
		d.sessionOpts = append(d.sessionOpts, opts...)
	}
}

// WithTransportOptions configures every upgraded WebSocket connection.
func WithTransportOptions(opts ...websocket.Option) Option {
	return func(d *Domain) {
		d.transportOpts = append(d.transportOpts, opts...)
	}
}

// WithContainer replaces the resolver, e.g. to share providers between domains.
func WithContainer(c *inject.Container) Option {
	return func(d *Domain) {
		d.container = c
	}
}

// New creates a Domain served on path.
func New(path string, opts ...Option) *Domain {
	if path == "" {
		path = DefaultPath
	}
	d := &Domain{
		Path:      path,
		registry:  registry.NewRegistry(),
		container: inject.NewContainer(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enter registers the handler run when a connection opens. Its value is sent
// to the peer as the "init" event. A two-phase entry keeps its resources open
// until the connection closes.
func (d *Domain) Enter(fn any) error {
	return d.registry.RegisterEntry(fn)
}

// Endpoint registers a request handler under name. A later registration
// under the same name replaces the earlier one.
func (d *Domain) Endpoint(name string, fn any) error {
	return d.registry.RegisterEndpoint(name, fn)
}

// Exit registers the handler run once after the connection closes.
func (d *Domain) Exit(fn any) error {
	return d.registry.RegisterExit(fn)
}

// Provide registers a dependency provider. See inject.Container.Provide.
func (d *Domain) Provide(fn any) error {
	return d.container.Provide(fn)
}

// Endpoints lists the registered endpoint names.
func (d *Domain) Endpoints() []string {
	return d.registry.Endpoints()
}

// Manager returns the session manager, creating it on first use.
func (d *Domain) Manager() *session.Manager {
	d.once.Do(func() {
		opts := append([]session.Option{
			session.WithLogger(d.logger),
			session.WithPath(d.Path),
		}, d.sessionOpts...)
		invoker := invoke.New(d.container, invoke.WithLogger(d.logger))
		d.manager = session.NewManager(d.registry, invoker, opts...)
	})
	return d.manager
}

// Serve runs one session over tr until it closes.
func (d *Domain) Serve(ctx context.Context, tr ports.Transport) error {
	return d.Manager().Serve(ctx, tr)
}

// ServeHTTP upgrades the request to a WebSocket and serves the session.
func (d *Domain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tr := websocket.New(w, r, d.transportOpts...)
	if err := d.Serve(r.Context(), tr); err != nil {
		d.logger.Warn("websocket handshake failed", "path", d.Path, "remote_addr", r.RemoteAddr, "err", err)
	}
}

// Mount registers the domain on r at d.Path.
func (d *Domain) Mount(r chi.Router) {
	r.Get(d.Path, d.ServeHTTP)
}
