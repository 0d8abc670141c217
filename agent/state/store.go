package state

import (
	"fmt"
	"io"
	"time"

	"github.com/BaSui01/skillbridge/agent/dispatch"
	"github.com/BaSui01/skillbridge/config"
	"github.com/BaSui01/skillbridge/internal/cache"
	"github.com/BaSui01/skillbridge/internal/database"
	"github.com/BaSui01/skillbridge/types"
	"go.uber.org/zap"
)

// Backend names accepted by config.StateConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDatabase = "database"
)

// Observer records store latency. *metrics.Collector satisfies it.
type Observer interface {
	RecordStoreOp(store, operation string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) RecordStoreOp(string, string, time.Duration) {}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the store selected by cfg.State.Backend. The returned closer
// releases its connections.
func New(cfg *config.Config, obs Observer, logger *zap.Logger) (dispatch.Store, io.Closer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.State.Backend {
	case "", BackendMemory:
		logger.Info("using in-memory conversation state")
		return dispatch.NewMemoryStore(), nopCloser{}, nil

	case BackendRedis:
		m, err := cache.NewManager(cache.ConfigFrom(cfg.Redis, cfg.State.TTL), logger)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(m, cfg.State.KeyPrefix, cfg.State.TTL, obs, logger), m, nil

	case BackendDatabase:
		pm, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		s, err := NewGormStore(pm, cfg.State.TTL, obs, logger)
		if err != nil {
			_ = pm.Close()
			return nil, nil, err
		}
		return s, pm, nil

	default:
		return nil, nil, types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("unknown state backend %q", cfg.State.Backend))
	}
}
