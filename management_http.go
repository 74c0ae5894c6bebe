package kvs

import (
	"context"
	"net"
	"time"

	fiber "github.com/gofiber/fiber/v3"
	"github.com/goccy/go-json"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/kvs/internal/sentinel"
)

// ManagementHTTPOption configures the management HTTP server.
type ManagementHTTPOption func(*ManagementHTTPServer)

// ManagementHTTPServer exposes client introspection over HTTP: health, stats,
// effective configuration, key ownership and connection pools.
type ManagementHTTPServer struct {
	addr         string
	app          *fiber.App
	readTimeout  time.Duration
	writeTimeout time.Duration
	authFunc     func(fiber.Ctx) error
	ln           net.Listener
	started      bool
}

// WithMgmtAuth sets an auth function (return error to block).
func WithMgmtAuth(fn func(fiber.Ctx) error) ManagementHTTPOption {
	return func(s *ManagementHTTPServer) { s.authFunc = fn }
}

// WithMgmtReadTimeout sets read timeout.
func WithMgmtReadTimeout(d time.Duration) ManagementHTTPOption {
	return func(s *ManagementHTTPServer) { s.readTimeout = d }
}

// WithMgmtWriteTimeout sets write timeout.
func WithMgmtWriteTimeout(d time.Duration) ManagementHTTPOption {
	return func(s *ManagementHTTPServer) { s.writeTimeout = d }
}

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// NewManagementHTTPServer builds an HTTP server holder (lazy start).
func NewManagementHTTPServer(addr string, opts ...ManagementHTTPOption) *ManagementHTTPServer {
	srv := &ManagementHTTPServer{
		addr:         addr,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.app = fiber.New(fiber.Config{
		ReadTimeout:  srv.readTimeout,
		WriteTimeout: srv.writeTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return srv
}

// managementClient is what the server reads from; Cluster satisfies it.
type managementClient interface {
	GetStats() Stats
	Settings() map[string]any
}

// managementRing is the optional routing view, queried via type assertion.
type managementRing interface {
	Owner(key string) string
	RingHashes() []string
	PoolStats() map[string]PoolStats
}

// Start launches listener (idempotent).
func (s *ManagementHTTPServer) Start(ctx context.Context, mc managementClient) error {
	if s.started {
		return nil
	}

	s.mountRoutes(mc)

	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return ewrap.Wrap(err, "mgmt listen")
	}

	s.ln = ln

	go func() {
		_ = s.app.Listener(ln) //nolint:errcheck // returns once Shutdown closes the listener
	}()

	s.started = true

	return nil
}

// Address returns the bound address (useful when passing ":0" for ephemeral port). Empty if not started yet.
func (s *ManagementHTTPServer) Address() string {
	if s.ln == nil {
		return ""
	}

	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *ManagementHTTPServer) Shutdown(ctx context.Context) error {
	if !s.started {
		return nil
	}

	ch := make(chan error, 1)

	go func() {
		ch <- s.app.Shutdown()
	}()

	select {
	case <-ctx.Done():
		return sentinel.ErrMgmtHTTPShutdownTimeout
	case err := <-ch:
		return err
	}
}

func (s *ManagementHTTPServer) mountRoutes(mc managementClient) {
	useAuth := s.wrapAuth

	s.app.Get("/health", useAuth(func(fiberCtx fiber.Ctx) error { return fiberCtx.SendString("ok") }))
	s.app.Get("/stats", useAuth(func(fiberCtx fiber.Ctx) error { return fiberCtx.JSON(mc.GetStats()) }))
	s.app.Get("/config", useAuth(func(fiberCtx fiber.Ctx) error { return fiberCtx.JSON(mc.Settings()) }))

	s.registerCluster(useAuth, mc)
}

// wrapAuth returns an auth-wrapped handler if authFunc provided.
func (s *ManagementHTTPServer) wrapAuth(handler fiber.Handler) fiber.Handler {
	if s.authFunc == nil {
		return handler
	}

	return func(fiberCtx fiber.Ctx) error {
		authErr := s.authFunc(fiberCtx)
		if authErr != nil {
			return authErr
		}

		return handler(fiberCtx)
	}
}

func (s *ManagementHTTPServer) registerCluster(useAuth func(fiber.Handler) fiber.Handler, mc managementClient) {
	unsupported := func(fiberCtx fiber.Ctx) error {
		return fiberCtx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cluster routing unsupported"})
	}

	s.app.Get("/cluster/owner", useAuth(func(fiberCtx fiber.Ctx) error {
		mr, ok := mc.(managementRing)
		if !ok {
			return unsupported(fiberCtx)
		}

		key := fiberCtx.Query("key")
		if key == "" {
			return fiberCtx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing key"})
		}

		return fiberCtx.JSON(fiber.Map{"key": key, "owner": mr.Owner(key)})
	}))
	s.app.Get("/cluster/ring", useAuth(func(fiberCtx fiber.Ctx) error {
		mr, ok := mc.(managementRing)
		if !ok {
			return unsupported(fiberCtx)
		}

		spots := mr.RingHashes()

		return fiberCtx.JSON(fiber.Map{"count": len(spots), "vnodes": spots})
	}))
	s.app.Get("/cluster/pools", useAuth(func(fiberCtx fiber.Ctx) error {
		mr, ok := mc.(managementRing)
		if !ok {
			return unsupported(fiberCtx)
		}

		return fiberCtx.JSON(mr.PoolStats())
	}))
}
