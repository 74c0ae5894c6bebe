package kvs

import (
	"context"
)

// Service is the long-lived client interface implemented by Session and Cluster.
// It enables middleware to be added around the client.
type Service interface {
	// Get fetches a value; found is false when the server holds no value for key.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key.
	Remove(ctx context.Context, key string) error
	// Close releases every connection held by the service.
	Close() error
}

// Middleware describes a service middleware.
type Middleware func(Service) Service

// ApplyMiddleware applies middlewares to a service, outermost last.
func ApplyMiddleware(svc Service, mw ...Middleware) Service {
	for _, m := range mw {
		svc = m(svc)
	}

	return svc
}
