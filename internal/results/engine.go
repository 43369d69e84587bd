package results

import (
	"errors"
	"log"
	"sync"

	"github.com/ignite/phishsim-monitor/internal/domain"
	"github.com/ignite/phishsim-monitor/internal/screening"
)

// ErrStaleSnapshot is returned when a fetch resolves after a newer one has
// already been applied; the late snapshot is discarded, never merged.
var ErrStaleSnapshot = errors.New("snapshot superseded by a newer fetch")

// ErrEngineClosed is returned when a snapshot arrives after Teardown.
var ErrEngineClosed = errors.New("engine torn down")

// TableSink consumes updated table rows. Sinks are pure consumers; the
// engine never reads back from them.
type TableSink interface {
	UpdateRows(rows []*Row)
}

// ChartSink consumes the per-campaign donut tiles and timeline points.
type ChartSink interface {
	UpdateCharts(tiles []Slice, points []EventPoint)
}

// MapSink consumes the deduplicated marker set.
type MapSink interface {
	UpdateMarkers(markers []Marker)
}

// Engine owns the reconciliation state for one campaign: the snapshot
// store, the table reconciler and the derived-view caches. Reconciliation
// runs on a single task at a time (the poller's single-flight rule); the
// internal lock only protects concurrent readers of the derived views.
type Engine struct {
	campaignID int64

	mu      sync.RWMutex
	store   *SnapshotStore
	table   *TableReconciler
	markers []Marker
	tiles   []Slice
	points  []EventPoint

	applied uint64 // generation of the last applied snapshot
	nextGen uint64
	closed  bool

	tableSink TableSink
	chartSink ChartSink
	mapSink   MapSink
}

// NewEngine creates the reconciliation engine for a campaign.
func NewEngine(campaignID int64) *Engine {
	return &Engine{
		campaignID: campaignID,
		store:      NewSnapshotStore(),
		table:      NewTableReconciler(),
	}
}

// SetSinks attaches the rendering sinks. Any of them may be nil.
func (e *Engine) SetSinks(table TableSink, chart ChartSink, m MapSink) {
	e.tableSink = table
	e.chartSink = chart
	e.mapSink = m
}

// CampaignID returns the campaign this engine reconciles.
func (e *Engine) CampaignID() int64 {
	return e.campaignID
}

// BeginFetch reserves a generation for a fetch cycle. Generations order
// concurrent fetches so that only the newest resolved snapshot wins.
func (e *Engine) BeginFetch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextGen++
	return e.nextGen
}

// Apply reconciles a fetched snapshot under the generation reserved by
// BeginFetch. A snapshot from a generation at or below the last applied
// one is a stale straggler and is dropped without touching derived state.
func (e *Engine) Apply(gen uint64, snap *domain.Campaign) (ChangeSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ChangeSet{}, ErrEngineClosed
	}
	if gen <= e.applied {
		return ChangeSet{}, ErrStaleSnapshot
	}
	e.applied = gen

	// Older servers omit the screened flag on events; classify locally
	// before the timeline sees them.
	screening.Annotate(snap.Timeline)

	cs := e.store.Apply(snap)
	touched := e.table.Reconcile(cs, snap.Results, snap.Timeline)
	e.markers = AggregateGeo(snap.Results)
	e.tiles = CampaignTiles(snap.Stats)
	e.points = EventSeries(snap.Timeline)

	if !cs.Empty() {
		log.Printf("[Engine] Campaign %d: reconciled gen=%d new=%d changed=%d",
			e.campaignID, gen, len(cs.New), len(cs.Changed))
	}

	if e.tableSink != nil && len(touched) > 0 {
		e.tableSink.UpdateRows(touched)
	}
	if e.chartSink != nil {
		e.chartSink.UpdateCharts(e.tiles, e.points)
	}
	if e.mapSink != nil {
		e.mapSink.UpdateMarkers(e.markers)
	}

	return cs, nil
}

// Teardown releases the engine. Late snapshots applied afterwards become
// no-ops.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Snapshot returns the latest applied campaign snapshot, or nil.
func (e *Engine) Snapshot() *domain.Campaign {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Current()
}

// Rows returns the current table rows in stable order.
func (e *Engine) Rows() []*Row {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table.Rows()
}

// Markers returns the current map marker set.
func (e *Engine) Markers() []Marker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.markers
}

// Tiles returns the current donut tiles.
func (e *Engine) Tiles() []Slice {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tiles
}

// Points returns the current timeline chart points.
func (e *Engine) Points() []EventPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.points
}

// ExpandRow opens a row and returns it with a freshly built timeline.
// Returns nil when the row or the snapshot is unknown.
func (e *Engine) ExpandRow(id string) *Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.store.Current()
	if snap == nil {
		return nil
	}
	return e.table.Expand(id, snap.Results, snap.Timeline)
}

// CollapseRow closes a row; its timeline is rebuilt lazily on the next
// expansion.
func (e *Engine) CollapseRow(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.table.Collapse(id)
}

// IsRowExpanded reports a row's expansion state.
func (e *Engine) IsRowExpanded(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table.IsRowExpanded(id)
}

// Replay builds the confirmed form post for a submitted-data entry of an
// expanded row. entryIdx indexes the row's current timeline.
func (e *Engine) Replay(id string, entryIdx int, confirmedURL string) (*ReplayRequest, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	row := e.table.Row(id)
	if row == nil || entryIdx < 0 || entryIdx >= len(row.Timeline) {
		return nil, ErrNotSubmission
	}
	return BuildReplay(row.Timeline[entryIdx], confirmedURL)
}
