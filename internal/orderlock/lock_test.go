package orderlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

type fakeStore struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[key] != owner {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func (f *fakeStore) LockKey(scope, id string) string {
	return "of:lock:" + scope + ":" + id
}

func TestRedisLockerSerializesPerOrder(t *testing.T) {
	store := newFakeStore()
	locker, err := NewRedisLocker(store, time.Minute, nil, nil)
	require.NoError(t, err)

	orderID := uuid.New()
	other := uuid.New()
	ctx := context.Background()

	err = locker.WithLock(ctx, orderID, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, orderID, func(context.Context) error { return nil })
		assert.True(t, pkgerrors.HasCode(inner, pkgerrors.CodeLocked))

		ran := false
		require.NoError(t, locker.WithLock(ctx, other, func(context.Context) error {
			ran = true
			return nil
		}))
		assert.True(t, ran, "different orders must not contend")
		return nil
	})
	require.NoError(t, err)

	assert.NotContains(t, store.values, store.LockKey("order", orderID.String()), "lock must be released")
}

func TestRedisLockerReleasesOnError(t *testing.T) {
	store := newFakeStore()
	locker, err := NewRedisLocker(store, 0, nil, nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	orderID := uuid.New()
	err = locker.WithLock(context.Background(), orderID, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	require.NoError(t, locker.WithLock(context.Background(), orderID, func(context.Context) error { return nil }))
}

func TestRedisLockerDoesNotReleaseForeignOwner(t *testing.T) {
	store := newFakeStore()
	locker, err := NewRedisLocker(store, time.Minute, nil, nil)
	require.NoError(t, err)

	orderID := uuid.New()
	key := store.LockKey("order", orderID.String())
	err = locker.WithLock(context.Background(), orderID, func(context.Context) error {
		store.values[key] = "someone-else"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "someone-else", store.values[key])
}

func TestRedisLockerSurfacesStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.setErr = errors.New("connection refused")
	locker, err := NewRedisLocker(store, time.Minute, nil, nil)
	require.NoError(t, err)

	err = locker.WithLock(context.Background(), uuid.New(), func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker(nil)
	orderID := uuid.New()

	err := locker.WithLock(context.Background(), orderID, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, orderID, func(context.Context) error { return nil })
		require.Error(t, inner)
		assert.True(t, pkgerrors.HasCode(inner, pkgerrors.CodeLocked))
		assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeLocked).Retryable)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, locker.WithLock(context.Background(), orderID, func(context.Context) error { return nil }))
}

func TestNewRedisLockerRequiresClient(t *testing.T) {
	_, err := NewRedisLocker(nil, time.Second, nil, nil)
	assert.Error(t, err)
}

func TestRedisLockerWithScopeNamespacesKeys(t *testing.T) {
	store := newFakeStore()
	base, err := NewRedisLocker(store, time.Minute, nil, nil)
	require.NoError(t, err)
	scoped := base.WithScope("tenant-a")

	orderID := uuid.New()
	err = scoped.WithLock(context.Background(), orderID, func(ctx context.Context) error {
		_, held := store.values[store.LockKey("tenant-a", orderID.String())]
		assert.True(t, held)
		return base.WithLock(ctx, orderID, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
	assert.Empty(t, store.values)
}
