package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cryptotracker/pkg/logx"
)

func testRegistry() *Registry {
	return NewRegistry(Config{
		Timeout:     time.Second,
		MinInterval: 10 * time.Millisecond,
		MaxPerOwner: 10,
	}, logx.Nop())
}

func noop(ctx context.Context) error { return nil }

func TestStartRejectsDuplicateKey(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	key := Key{Owner: 7, Kind: KindGraph, Resource: "bitcoin"}

	if err := r.Start(key, time.Minute, noop); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := r.Start(key, time.Minute, noop); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start: err = %v, want ErrAlreadyRunning", err)
	}
	if n := r.Len(); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
	r.StopAll(context.Background())
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	key := Key{Owner: 7, Kind: KindGraph, Resource: "bitcoin"}

	if err := r.Start(key, time.Minute, noop); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Stop(key); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := r.Stop(key); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("second Stop: err = %v, want ErrNotRunning", err)
	}
	if r.IsRunning(key) {
		t.Fatal("IsRunning should be false after Stop")
	}
}

func TestConcurrentStartsYieldOneJob(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	key := Key{Owner: 7, Kind: KindAutoPrice, Resource: "bitcoin"}

	const callers = 16
	var winners, losers atomic.Int64
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			switch err := r.Start(key, time.Minute, noop); {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, ErrAlreadyRunning):
				losers.Add(1)
			default:
				t.Errorf("Start: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 || losers.Load() != callers-1 {
		t.Fatalf("winners = %d, losers = %d, want 1 and %d", winners.Load(), losers.Load(), callers-1)
	}
	r.StopAll(context.Background())
}

func TestActionErrorKeepsJobAlive(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	key := Key{Owner: 1, Kind: KindAutoPrice, Resource: "bitcoin"}

	var runs atomic.Int64
	err := r.Start(key, 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("price source unavailable")
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("runs = %d, want >= 3 despite errors", runs.Load())
	}
	if !r.IsRunning(key) {
		t.Fatal("failing action must not cancel the job")
	}
	r.StopAll(context.Background())
}

func TestStopPreventsFurtherRuns(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	key := Key{Owner: 1, Kind: KindGraph, Resource: "ethereum"}

	var runs atomic.Int64
	if err := r.Start(key, 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := r.Stop(key); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Allow any in-flight execution to settle, then verify the counter
	// stops advancing.
	time.Sleep(50 * time.Millisecond)
	after := runs.Load()
	time.Sleep(100 * time.Millisecond)
	if got := runs.Load(); got != after {
		t.Fatalf("job still running after Stop: %d -> %d", after, got)
	}
}

func TestStartAfterStopReusesKey(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	key := Key{Owner: 9, Kind: KindDigest, Resource: "daily"}

	if err := r.Start(key, time.Minute, noop); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Stop(key); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Start(key, time.Minute, noop); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
	r.StopAll(context.Background())
}

func TestPerOwnerJobCap(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{MinInterval: time.Millisecond, MaxPerOwner: 2}, logx.Nop())

	if err := r.Start(Key{Owner: 1, Kind: KindGraph, Resource: "a"}, time.Minute, noop); err != nil {
		t.Fatalf("Start a: %v", err)
	}
	if err := r.Start(Key{Owner: 1, Kind: KindGraph, Resource: "b"}, time.Minute, noop); err != nil {
		t.Fatalf("Start b: %v", err)
	}
	if err := r.Start(Key{Owner: 1, Kind: KindGraph, Resource: "c"}, time.Minute, noop); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("over cap: err = %v, want ErrLimitExceeded", err)
	}
	// Another owner is unaffected.
	if err := r.Start(Key{Owner: 2, Kind: KindGraph, Resource: "c"}, time.Minute, noop); err != nil {
		t.Fatalf("other owner: %v", err)
	}
	r.StopAll(context.Background())
}

func TestStopAllWaitsForInflight(t *testing.T) {
	t.Parallel()
	r := testRegistry()

	var once sync.Once
	started := make(chan struct{})
	finished := make(chan struct{})
	err := r.Start(Key{Owner: 3, Kind: KindAutoPrice, Resource: "bitcoin"}, 15*time.Millisecond, func(ctx context.Context) error {
		once.Do(func() {
			close(started)
			time.Sleep(50 * time.Millisecond)
			close(finished)
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-started
	r.StopAll(context.Background())
	select {
	case <-finished:
	default:
		t.Fatal("StopAll returned before the in-flight execution completed")
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}

func TestRunningByOwner(t *testing.T) {
	t.Parallel()
	r := testRegistry()
	k1 := Key{Owner: 5, Kind: KindGraph, Resource: "bitcoin"}
	k2 := Key{Owner: 5, Kind: KindAutoPrice, Resource: "bitcoin"}
	if err := r.Start(k1, time.Minute, noop); err != nil {
		t.Fatalf("Start k1: %v", err)
	}
	if err := r.Start(k2, time.Minute, noop); err != nil {
		t.Fatalf("Start k2: %v", err)
	}
	if err := r.Start(Key{Owner: 6, Kind: KindGraph, Resource: "bitcoin"}, time.Minute, noop); err != nil {
		t.Fatalf("Start other owner: %v", err)
	}

	got := r.RunningByOwner(5)
	if len(got) != 2 {
		t.Fatalf("RunningByOwner = %v, want 2 keys", got)
	}
	r.StopAll(context.Background())
}
