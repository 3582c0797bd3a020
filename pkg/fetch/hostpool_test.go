package fetch

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.NewFile(0, os.DevNull))
	return logrus.NewEntry(log)
}

func TestHostPoolPacing(t *testing.T) {
	const interval = 50 * time.Millisecond
	p := NewHostPool(1, interval, testLogger())
	ctx := context.Background()

	if err := p.Acquire(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}
	p.Release("example.com")

	start := time.Now()
	if err := p.Acquire(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}
	p.Release("example.com")
	if elapsed := time.Since(start); elapsed < interval/2 {
		t.Errorf("second acquire after %v, want pacing near %v", elapsed, interval)
	}
}

func TestHostPoolIndependentHosts(t *testing.T) {
	p := NewHostPool(1, time.Second, testLogger())
	ctx := context.Background()

	if err := p.Acquire(ctx, "a.test"); err != nil {
		t.Fatal(err)
	}
	// A different host must not wait on a.test's permit or interval.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Acquire(ctx, "b.test"); err != nil {
			t.Error(err)
		}
		p.Release("b.test")
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("acquire for an independent host blocked")
	}
	p.Release("a.test")
}

func TestHostPoolConcurrencyLimit(t *testing.T) {
	p := NewHostPool(1, 0, testLogger())
	ctx := context.Background()

	if err := p.Acquire(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}
	acquired := make(chan struct{})
	go func() {
		if err := p.Acquire(ctx, "example.com"); err != nil {
			t.Error(err)
			return
		}
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("second permit granted while first still held")
	case <-time.After(50 * time.Millisecond):
	}
	p.Release("example.com")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never got the released permit")
	}
	p.Release("example.com")
}

func TestHostPoolAcquireCancelled(t *testing.T) {
	p := NewHostPool(1, 0, testLogger())
	if err := p.Acquire(context.Background(), "example.com"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Acquire(ctx, "example.com"); err == nil {
		t.Fatal("acquire must fail on cancelled context")
	}
	p.Release("example.com")
}

func TestHostPoolEviction(t *testing.T) {
	p := NewHostPool(1, 0, testLogger())
	ctx := context.Background()

	if err := p.Acquire(ctx, "gone.test"); err != nil {
		t.Fatal(err)
	}
	p.Release("gone.test")
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}

	time.Sleep(10 * time.Millisecond)
	p.evictIdle(5 * time.Millisecond)
	if p.Len() != 0 {
		t.Errorf("idle host not evicted, Len = %d", p.Len())
	}

	// Held entries survive eviction.
	if err := p.Acquire(ctx, "busy.test"); err != nil {
		t.Fatal(err)
	}
	p.evictIdle(0)
	if p.Len() != 1 {
		t.Errorf("active host evicted, Len = %d", p.Len())
	}
	p.Release("busy.test")
}
