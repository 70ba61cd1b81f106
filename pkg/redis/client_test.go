package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newMockCmdable()
	client := &Client{store: store}

	ok, err := client.SetNX(ctx, "k", "owner-a", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "k", "owner-b", time.Second)
	if err != nil || ok {
		t.Fatalf("expected second setnx to fail, ok=%v err=%v", ok, err)
	}
	if value := store.data["k"]; value != "owner-a" {
		t.Fatalf("expected first owner to win, got %q", value)
	}
}

func TestReleaseIfOwnerLeavesForeignValue(t *testing.T) {
	ctx := context.Background()
	store := newMockCmdable()
	client := &Client{store: store}

	if _, err := client.SetNX(ctx, "of:lock:order:1", "owner-a", time.Second); err != nil {
		t.Fatalf("setnx failed: %v", err)
	}
	released, err := client.ReleaseIfOwner(ctx, "of:lock:order:1", "owner-b")
	if err != nil || released {
		t.Fatalf("foreign owner must not release, released=%v err=%v", released, err)
	}
	released, err = client.ReleaseIfOwner(ctx, "of:lock:order:1", "owner-a")
	if err != nil || !released {
		t.Fatalf("owner should release, released=%v err=%v", released, err)
	}
	if _, ok := store.data["of:lock:order:1"]; ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if _, err := client.SetNX(context.Background(), "k", "v", time.Second); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on uninitialized client should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.LockKey("order", "abc"); got != "of:lock:order:abc" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.LockKey("", "abc"); got != "of:lock:abc" {
		t.Fatalf("empty scope should be skipped, got %s", got)
	}
}

func TestOptionsFromConfigRequiresEndpoint(t *testing.T) {
	if _, err := optionsFromConfig(configWith("", "")); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := optionsFromConfig(configWith("redis://localhost:6379/2", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 {
		t.Fatalf("expected db from url, got %d", opts.DB)
	}
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

// Eval emulates releaseScript, the only script the client runs.
func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script != releaseScript || len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script call"))
	}
	if m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func configWith(url, addr string) config.RedisConfig {
	return config.RedisConfig{URL: url, Address: addr, PoolSize: 4}
}
