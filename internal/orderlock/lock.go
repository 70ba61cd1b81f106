// Package orderlock serializes mutating operations per order. Acquisition
// never blocks: a held lock is reported as a CodeLocked error.
package orderlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
)

const (
	defaultTTL   = 30 * time.Second
	lockScope    = "order"
	releaseGrace = 5 * time.Second
)

// Locker runs fn while holding the exclusive lock for orderID.
type Locker interface {
	WithLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error
}

// LockedError builds the contention error returned to callers.
func LockedError(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeLocked, fmt.Sprintf("order %s is locked by another operation", orderID)).
		WithDetails(map[string]any{"order_id": orderID.String()})
}

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLocker implements Locker using Redis SETNX with an owner token and TTL.
type RedisLocker struct {
	client  redisStore
	ttl     time.Duration
	scope   string
	logg    *logger.Logger
	metrics *metrics.EngineMetrics
}

func NewRedisLocker(client redisStore, ttl time.Duration, logg *logger.Logger, m *metrics.EngineMetrics) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl, scope: lockScope, logg: logg, metrics: m}, nil
}

// WithScope returns a copy of the locker that namespaces its keys under scope.
func (l *RedisLocker) WithScope(scope string) *RedisLocker {
	clone := *l
	if scope != "" {
		clone.scope = scope
	}
	return &clone
}

func (l *RedisLocker) WithLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error {
	key := l.client.LockKey(l.scope, orderID.String())
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire order lock")
	}
	if !ok {
		l.metrics.IncLockContention(l.scope)
		l.logg.Warn(l.logg.WithOrderID(ctx, orderID.String()), "order lock contention")
		return LockedError(orderID)
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseGrace)
		defer cancel()
		released, err := l.client.ReleaseIfOwner(releaseCtx, key, owner)
		if err != nil {
			l.logg.Error(l.logg.WithOrderID(ctx, orderID.String()), "release order lock", err)
			return
		}
		if !released {
			l.logg.Warn(l.logg.WithOrderID(ctx, orderID.String()), "order lock expired before release")
		}
	}()

	return fn(ctx)
}

// MemoryLocker is a process-local Locker for single-node runs and tests.
type MemoryLocker struct {
	mu      sync.Mutex
	held    map[uuid.UUID]struct{}
	metrics *metrics.EngineMetrics
}

func NewMemoryLocker(m *metrics.EngineMetrics) *MemoryLocker {
	return &MemoryLocker{held: make(map[uuid.UUID]struct{}), metrics: m}
}

func (l *MemoryLocker) WithLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if _, busy := l.held[orderID]; busy {
		l.mu.Unlock()
		l.metrics.IncLockContention(lockScope)
		return LockedError(orderID)
	}
	l.held[orderID] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, orderID)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
