package lease

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/receiptor/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewFromConfig selects the redis locker when a redis address is
// configured, the in-memory arena otherwise.
func NewFromConfig(cfg config.Config, log *zap.Logger) *Manager {
	var locker Locker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		locker = NewRedisLocker(client)
		log.Named("lease").Info("using redis order leases", zap.String("addr", cfg.RedisAddr))
	} else {
		locker = NewMemoryLocker()
		log.Named("lease").Info("using in-process order leases")
	}
	return NewManager(locker, cfg.LeaseTTL, cfg.LeaseWaitMax)
}

// Module wires the per-order lease manager.
var Module = fx.Module("lease",
	fx.Provide(NewFromConfig),
)
