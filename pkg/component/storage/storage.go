// Package storage provides a unified interface for storage backends.
//
// It defines the core abstractions all storage clients follow (MongoDB,
// Redis, Milvus), plus a Manager for registry, health checking, and
// lifecycle management of multiple clients.
package storage

import (
	"context"
	"time"
)

// Client is the base interface implemented by every storage client.
type Client interface {
	// Name returns the storage type identifier.
	Name() string

	// Ping checks if the connection to the backend is alive.
	Ping(ctx context.Context) error

	// Close closes the connection gracefully. It is idempotent.
	Close() error

	// Health returns a HealthChecker function for health monitoring.
	Health() HealthChecker
}

// HealthChecker verifies connectivity to a storage backend.
type HealthChecker func() error

// HealthStatus is the result of one health check.
type HealthStatus struct {
	Name    string
	Healthy bool
	Latency time.Duration
	Error   error
}
