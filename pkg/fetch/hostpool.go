package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// hostEntry tracks a single host's permits and pacing state.
type hostEntry struct {
	sem         *semaphore.Weighted
	limiter     *rate.Limiter
	activeCount int64     // number of held + waiting permits
	lastRelease time.Time // updated on every Release; zero if never released
}

// HostPool manages per-host concurrency permits and a minimum inter-request
// interval. A single pool should be shared across all checkers so the
// per-host limits are enforced globally.
type HostPool struct {
	entries  map[string]*hostEntry
	mu       sync.Mutex
	limit    int64
	interval time.Duration
	log      *logrus.Entry
}

// NewHostPool creates a pool with the given per-host concurrency limit and
// minimum interval between requests to the same host.
func NewHostPool(maxPerHost int, interval time.Duration, log *logrus.Entry) *HostPool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 2
		log.Warnf("host_concurrency invalid or zero, defaulting to %d", limit)
	}
	return &HostPool{
		entries:  make(map[string]*hostEntry),
		limit:    limit,
		interval: interval,
		log:      log,
	}
}

func (p *HostPool) entry(host string) *hostEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, exists := p.entries[host]
	if !exists {
		limiter := rate.NewLimiter(rate.Inf, 1)
		if p.interval > 0 {
			limiter = rate.NewLimiter(rate.Every(p.interval), 1)
		}
		entry = &hostEntry{sem: semaphore.NewWeighted(p.limit), limiter: limiter}
		p.entries[host] = entry
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit, "interval": p.interval}).Debug("Created host entry")
	}
	return entry
}

// Acquire takes one permit for the host and then waits out the host's
// minimum request interval. FIFO among waiters of the same host is
// inherited from the semaphore. Blocks until both the permit and the pacing
// token are obtained, or until ctx is cancelled.
func (p *HostPool) Acquire(ctx context.Context, host string) error {
	entry := p.entry(host)

	p.mu.Lock()
	entry.activeCount++
	p.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		entry.activeCount--
		p.mu.Unlock()
		return err
	}
	if err := entry.limiter.Wait(ctx); err != nil {
		entry.sem.Release(1)
		p.mu.Lock()
		entry.activeCount--
		p.mu.Unlock()
		return err
	}
	return nil
}

// Release returns one permit for the given host.
func (p *HostPool) Release(host string) {
	p.mu.Lock()
	entry, exists := p.entries[host]
	if !exists {
		p.mu.Unlock()
		p.log.Errorf("hostpool: Release called for unknown host: %s", host)
		return
	}
	entry.activeCount--
	entry.lastRelease = time.Now()
	p.mu.Unlock()

	entry.sem.Release(1)
}

// RunEviction periodically removes idle host entries. Should be run in a
// goroutine.
func (p *HostPool) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle(interval)
		case <-ctx.Done():
			return
		}
	}
}

func (p *HostPool) evictIdle(maxIdle time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	evicted := 0
	for host, entry := range p.entries {
		if entry.activeCount == 0 && !entry.lastRelease.IsZero() && now.Sub(entry.lastRelease) >= maxIdle {
			delete(p.entries, host)
			evicted++
		}
	}
	if evicted > 0 {
		p.log.Debugf("Evicted %d idle host entries, %d remain", evicted, len(p.entries))
	}
}

// Len returns the current number of tracked hosts.
func (p *HostPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
