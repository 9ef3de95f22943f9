package backend

import (
	"context"
	"time"

	"loancalc/internal/services"
	"loancalc/internal/session"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult carries the session store, the optional export publisher
// and a cleanup function releasing both.
type BackendResult struct {
	Store     session.Store
	Publisher services.ExportPublisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SessionTTL time.Duration
	SessionMax int

	// SQLite specific
	SQLiteDBPath string

	// Redis specific
	RedisAddr string

	// Comparison export, empty URL disables it
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// SweepInterval is how often expired sessions are dropped. Zero means
	// one minute.
	SweepInterval time.Duration
}

// BackendType represents the type of session backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	RedisBackend  BackendType = "redis"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, RedisBackend:
		return true
	default:
		return false
	}
}
