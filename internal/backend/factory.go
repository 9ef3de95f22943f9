package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loancalc/internal/amqp"
	"loancalc/internal/cache"
	"loancalc/internal/session"
	"loancalc/internal/storage"
)

const defaultSweepInterval = time.Minute

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend. A broker that cannot be
// reached disables export instead of failing startup.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaultSweepInterval
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case MemoryBackend:
		result = f.createMemoryBackend(config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case RedisBackend:
		result, err = f.createRedisBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.AMQPURL == "" {
		f.logger.Info("Comparison export disabled - no AMQP_URL provided")
		return result, nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without export", "error", err)
		return result, nil
	}
	f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)

	result.Publisher = client
	storeCleanup := result.Cleanup
	result.Cleanup = func() error {
		return errors.Join(client.Close(), storeCleanup())
	}
	return result, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) *BackendResult {
	store := session.NewMemoryStore(config.SessionMax, config.SessionTTL)

	manager := cache.NewManager()
	manager.Register(store.Cache())
	manager.StartCleanup(config.SweepInterval)

	f.logger.Info("Initialized memory session backend",
		"max_sessions", config.SessionMax,
		"ttl", config.SessionTTL)

	return &BackendResult{
		Store: store,
		Cleanup: func() error {
			manager.Stop()
			return nil
		},
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, config.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	stop := runPeriodically(config.SweepInterval, func(ctx context.Context) {
		if _, err := repo.PurgeExpired(ctx); err != nil {
			f.logger.Error("Failed to purge expired sessions", "error", err)
		}
	})

	f.logger.Info("Initialized SQLite session backend", "db_path", config.SQLiteDBPath, "ttl", config.SessionTTL)

	return &BackendResult{
		Store: repo,
		Cleanup: func() error {
			stop()
			return repo.Close()
		},
	}, nil
}

func (f *DefaultFactory) createRedisBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := storage.NewRedisStore(ctx, config.RedisAddr, config.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
	}

	f.logger.Info("Initialized Redis session backend", "addr", config.RedisAddr, "ttl", config.SessionTTL)

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

// runPeriodically calls fn every interval until the returned stop function
// is called. stop waits for a running call to finish.
func runPeriodically(interval time.Duration, fn func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
