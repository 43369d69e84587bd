// Package worker drives the periodic fetch-and-reconcile cycles against
// the phishing server.
package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/phishsim-monitor/internal/domain"
	"github.com/ignite/phishsim-monitor/internal/results"
)

// DefaultPollInterval is the refresh cadence when no interval is configured.
const DefaultPollInterval = 60 * time.Second

// SnapshotFetcher fetches campaign snapshots. *gophish.Client satisfies it.
type SnapshotFetcher interface {
	GetCampaignResults(ctx context.Context, id int64) (*domain.Campaign, error)
	GetCampaignStats(ctx context.Context, id int64) (*domain.Stats, error)
}

// StatsRecorder persists one stats row per reconcile cycle.
type StatsRecorder interface {
	Record(ctx context.Context, cycleID string, campaignID int64, s domain.Stats) error
}

// SnapshotCache keeps the latest raw snapshot warm across restarts.
type SnapshotCache interface {
	CacheSnapshot(ctx context.Context, c *domain.Campaign) error
}

// CampaignPoller re-fetches one campaign's snapshot and feeds it to the
// reconciliation engine. Cycles are single-flight: the next cycle is
// scheduled only after the current fetch-and-reconcile resolves, never on
// a fixed wall-clock cadence, so cycles cannot overlap.
type CampaignPoller struct {
	campaignID int64
	engine     *results.Engine
	fetcher    SnapshotFetcher
	interval   time.Duration

	history StatsRecorder // optional
	cache   SnapshotCache // optional

	// Stats
	cycles     int64
	fetchFails int64
	staleDrops int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewCampaignPoller creates a poller for one campaign.
func NewCampaignPoller(campaignID int64, engine *results.Engine, fetcher SnapshotFetcher, interval time.Duration) *CampaignPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &CampaignPoller{
		campaignID: campaignID,
		engine:     engine,
		fetcher:    fetcher,
		interval:   interval,
	}
}

// SetHistory attaches the per-cycle stats recorder.
func (p *CampaignPoller) SetHistory(h StatsRecorder) {
	p.history = h
}

// SetCache attaches the snapshot cache.
func (p *CampaignPoller) SetCache(c SnapshotCache) {
	p.cache = c
}

// Start begins the polling loop. Starting a running poller is a no-op.
func (p *CampaignPoller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	log.Printf("[CampaignPoller] Campaign %d: starting, interval=%s", p.campaignID, p.interval)

	p.wg.Add(1)
	go p.pollLoop(p.ctx)
}

// Stop halts the poller: no further cycle is scheduled and a late-arriving
// fetch response will not be reconciled. The in-flight fetch itself is not
// cancelled mid-request. Stop is idempotent and safe to call from within a
// running cycle; it does not block on the loop goroutine (use Wait for
// that during shutdown).
func (p *CampaignPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	log.Printf("[CampaignPoller] Campaign %d: stopped. Stats: cycles=%d fetch_errors=%d stale_drops=%d",
		p.campaignID,
		atomic.LoadInt64(&p.cycles),
		atomic.LoadInt64(&p.fetchFails),
		atomic.LoadInt64(&p.staleDrops))
}

// Wait blocks until the polling loop has exited.
func (p *CampaignPoller) Wait() {
	p.wg.Wait()
}

// Running reports whether the poller is active.
func (p *CampaignPoller) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Stats returns cycle counters.
func (p *CampaignPoller) Stats() map[string]int64 {
	return map[string]int64{
		"cycles":       atomic.LoadInt64(&p.cycles),
		"fetch_errors": atomic.LoadInt64(&p.fetchFails),
		"stale_drops":  atomic.LoadInt64(&p.staleDrops),
	}
}

// pollLoop runs a cycle immediately, then re-arms the timer only after
// each cycle resolves.
func (p *CampaignPoller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		terminal := p.runCycle(ctx)
		if terminal {
			// A completed campaign stops polling permanently.
			log.Printf("[CampaignPoller] Campaign %d: completed, polling stopped", p.campaignID)
			p.Stop()
			return
		}

		timer.Reset(p.interval)
	}
}

// runCycle performs one fetch-and-reconcile pass. Returns true when the
// campaign has reached its terminal state.
//
// The loop context only gates scheduling and reconciliation. Fetches run
// on their own context so that Stop never aborts a request mid-flight;
// a response that resolves after Stop is discarded below instead.
func (p *CampaignPoller) runCycle(ctx context.Context) bool {
	atomic.AddInt64(&p.cycles, 1)
	cycleID := uuid.New().String()

	gen := p.engine.BeginFetch()
	fetchCtx := context.Background()

	snap, err := p.fetcher.GetCampaignResults(fetchCtx, p.campaignID)
	if err != nil {
		// Fetch failures abort this cycle only; the next interval retries.
		atomic.AddInt64(&p.fetchFails, 1)
		log.Printf("[CampaignPoller] Campaign %d: fetch failed: %v", p.campaignID, err)
		return false
	}
	stats, err := p.fetcher.GetCampaignStats(fetchCtx, p.campaignID)
	if err != nil {
		atomic.AddInt64(&p.fetchFails, 1)
		log.Printf("[CampaignPoller] Campaign %d: stats fetch failed: %v", p.campaignID, err)
		return false
	}
	snap.Stats = *stats

	// The poller may have been stopped while the fetch was outstanding;
	// a late response must not regress derived state.
	if ctx.Err() != nil {
		atomic.AddInt64(&p.staleDrops, 1)
		return false
	}

	if _, err := p.engine.Apply(gen, snap); err != nil {
		atomic.AddInt64(&p.staleDrops, 1)
		log.Printf("[CampaignPoller] Campaign %d: snapshot dropped: %v", p.campaignID, err)
		return snap.IsTerminal()
	}

	if p.history != nil {
		if err := p.history.Record(fetchCtx, cycleID, p.campaignID, snap.Stats); err != nil {
			log.Printf("[CampaignPoller] Campaign %d: stats history write failed: %v", p.campaignID, err)
		}
	}
	if p.cache != nil {
		if err := p.cache.CacheSnapshot(fetchCtx, snap); err != nil {
			log.Printf("[CampaignPoller] Campaign %d: snapshot cache write failed: %v", p.campaignID, err)
		}
	}

	return snap.IsTerminal()
}
