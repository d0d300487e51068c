package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lease is a per-account mutual-exclusion guard backed by redis SetNX.
// Concurrent triggers (webhook firing while the cron sweep runs) skip an
// account whose lease is held instead of racing on its cursor. The TTL is
// the backstop against a crashed holder.
type Lease struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func New(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Lease {
	return &Lease{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func key(accountID string) string {
	return fmt.Sprintf("sync:lease:%s", accountID)
}

// Acquire tries to take the sync lease for an account.
// Returns true when this caller now holds it, false when another session does.
// Fails open when redis is unavailable: blocking all syncs on a redis outage
// is worse than the cursor race the lease prevents.
func (l *Lease) Acquire(ctx context.Context, accountID string) bool {
	ok, err := l.rdb.SetNX(ctx, key(accountID), 1, l.ttl).Result()
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("Redis lease check failed, allowing sync",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && l.logger != nil {
		l.logger.Info("Skipped sync, lease held by another session",
			zap.String("account_id", accountID),
		)
	}

	return ok
}

// Release drops the lease. Best effort; the TTL covers failures here.
func (l *Lease) Release(ctx context.Context, accountID string) {
	if err := l.rdb.Del(ctx, key(accountID)).Err(); err != nil && l.logger != nil {
		l.logger.Warn("Failed to release sync lease",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
}
