package redisclient

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func TestNopLockerRunsFn(t *testing.T) {
	called := false
	err := NopLocker{}.WithSlotLock(context.Background(), "k", func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected fn to run, called=%v err=%v", called, err)
	}

	want := errors.New("boom")
	if err := (NopLocker{}).WithSlotLock(context.Background(), "k", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}
}

func TestRedisSlotLocker_SecondHolderRejected(t *testing.T) {
	_ = godotenv.Load("../../.env")
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb, err := NewRedisClient(addr, os.Getenv("REDIS_USERNAME"), os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	locker := NewRedisSlotLocker(rdb, 2*time.Second)
	key := uuid.NewString()

	holding := make(chan struct{})
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
			close(holding)
			<-done
			return nil
		})
	}()

	<-holding
	err = locker.WithSlotLock(context.Background(), key, func(context.Context) error { return nil })
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
	close(done)
	wg.Wait()

	if err := locker.WithSlotLock(context.Background(), key, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected lock to be free after release, got %v", err)
	}
}
