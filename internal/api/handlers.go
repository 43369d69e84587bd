// Package api exposes the derived views over HTTP. The handlers are thin:
// they start/stop watch sessions and serve whatever the reconciliation
// engine has computed. All rendering happens client-side.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/phishsim-monitor/internal/domain"
	"github.com/ignite/phishsim-monitor/internal/gophish"
	"github.com/ignite/phishsim-monitor/internal/repository/postgres"
	"github.com/ignite/phishsim-monitor/internal/results"
	"github.com/ignite/phishsim-monitor/internal/storage"
	"github.com/ignite/phishsim-monitor/internal/worker"
)

// watch is one active campaign monitoring session.
type watch struct {
	engine *results.Engine
	poller *worker.CampaignPoller
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	client       *gophish.Client
	store        *storage.Store        // optional
	history      *postgres.StatsHistory // optional
	pollInterval time.Duration

	mu      sync.Mutex
	watches map[int64]*watch

	useMap bool // guarded by mu after startup
}

// NewHandlers creates a Handlers instance.
func NewHandlers(client *gophish.Client, pollInterval time.Duration) *Handlers {
	return &Handlers{
		client:       client,
		pollInterval: pollInterval,
		watches:      make(map[int64]*watch),
	}
}

// SetStore attaches the preference/snapshot store and reads the map-view
// preference once.
func (h *Handlers) SetStore(ctx context.Context, store *storage.Store) {
	h.store = store
	if store != nil {
		useMap, err := store.UseMap(ctx)
		if err == nil {
			h.useMap = useMap
		}
	}
}

// SetHistory attaches the stats history repository.
func (h *Handlers) SetHistory(history *postgres.StatsHistory) {
	h.history = history
}

// Shutdown stops all pollers and tears down their engines.
func (h *Handlers) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, w := range h.watches {
		w.poller.Stop()
		w.engine.Teardown()
		delete(h.watches, id)
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleDashboard fetches the multi-campaign summary and aggregates it
// into percentage slices, the success-rate series and table rows.
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.client.GetCampaignSummaries(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	dash := results.AggregateDashboard(campaigns)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"slices": dash.Slices,
		"series": dash.Series,
		"rows":   dashboardRows(campaigns),
	})
}

// dashboardRow is one campaign line of the dashboard table. Opens and
// clicks combine real and screened interactions.
type dashboardRow struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	CreatedDate   time.Time `json:"created_date"`
	LaunchDate    time.Time `json:"launch_date"`
	Scheduled     bool      `json:"scheduled"`
	Status        string    `json:"status"`
	StatusLabel   string    `json:"status_label"`
	Total         int       `json:"total"`
	Sent          int       `json:"sent"`
	Opened        int       `json:"opened"`
	Clicked       int       `json:"clicked"`
	SubmittedData int       `json:"submitted_data"`
	Reported      int       `json:"reported"`
	Errors        int       `json:"errors"`
}

func dashboardRows(campaigns []domain.Campaign) []dashboardRow {
	rows := make([]dashboardRow, 0, len(campaigns))
	now := time.Now()
	for _, c := range campaigns {
		counters := c.Stats.Counters()
		rows = append(rows, dashboardRow{
			ID:            c.ID,
			Name:          c.Name,
			CreatedDate:   c.CreatedDate,
			LaunchDate:    c.LaunchDate,
			Scheduled:     c.LaunchDate.After(now),
			Status:        c.Status,
			StatusLabel:   results.Describe(c.Status).Label,
			Total:         c.Stats.Total,
			Sent:          c.Stats.Sent,
			Opened:        counters["opened"],
			Clicked:       counters["clicked"],
			SubmittedData: c.Stats.SubmittedData,
			Reported:      c.Stats.EmailReported,
			Errors:        c.Stats.Error,
		})
	}
	return rows
}

// HandleWatchCampaign starts a monitoring session for a campaign: one
// engine plus one poller. Watching an already-watched campaign is a no-op.
func (h *Handlers) HandleWatchCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.watches[id]; exists {
		respondJSON(w, http.StatusOK, map[string]interface{}{"campaign_id": id, "watching": true})
		return
	}

	engine := results.NewEngine(id)
	poller := worker.NewCampaignPoller(id, engine, h.client, h.pollInterval)
	if h.history != nil {
		poller.SetHistory(h.history)
	}
	if h.store != nil {
		poller.SetCache(h.store)
	}
	poller.Start()

	h.watches[id] = &watch{engine: engine, poller: poller}
	respondJSON(w, http.StatusOK, map[string]interface{}{"campaign_id": id, "watching": true})
}

// HandleUnwatchCampaign stops a monitoring session.
func (h *Handlers) HandleUnwatchCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if wt, exists := h.watches[id]; exists {
		wt.poller.Stop()
		wt.engine.Teardown()
		delete(h.watches, id)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"campaign_id": id, "watching": false})
}

// HandleTable serves the reconciled table rows.
func (h *Handlers) HandleTable(w http.ResponseWriter, r *http.Request) {
	wt, ok := h.watchFor(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wt.engine.Rows())
}

// HandleCharts serves the donut tiles and the timeline chart points.
func (h *Handlers) HandleCharts(w http.ResponseWriter, r *http.Request) {
	wt, ok := h.watchFor(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tiles":  wt.engine.Tiles(),
		"points": wt.engine.Points(),
	})
}

// HandleMap serves the deduplicated marker set. The map view is gated by
// the stored preference.
func (h *Handlers) HandleMap(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	useMap := h.useMap
	h.mu.Unlock()
	if !useMap {
		respondError(w, http.StatusNotFound, "map view disabled")
		return
	}
	wt, ok := h.watchFor(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wt.engine.Markers())
}

// HandleExpandRow opens a row and serves its timeline.
func (h *Handlers) HandleExpandRow(w http.ResponseWriter, r *http.Request) {
	wt, ok := h.watchFor(w, r)
	if !ok {
		return
	}
	row := wt.engine.ExpandRow(chi.URLParam(r, "rid"))
	if row == nil {
		respondError(w, http.StatusNotFound, "unknown result id")
		return
	}
	respondJSON(w, http.StatusOK, row)
}

// HandleCollapseRow closes a row.
func (h *Handlers) HandleCollapseRow(w http.ResponseWriter, r *http.Request) {
	wt, ok := h.watchFor(w, r)
	if !ok {
		return
	}
	wt.engine.CollapseRow(chi.URLParam(r, "rid"))
	w.WriteHeader(http.StatusNoContent)
}

// HandleReplay reconstructs the form post for a captured submission. The
// destination URL must be explicitly confirmed in the request body;
// without it the operation does not proceed.
func (h *Handlers) HandleReplay(w http.ResponseWriter, r *http.Request) {
	wt, ok := h.watchFor(w, r)
	if !ok {
		return
	}

	var req struct {
		EntryIndex int    `json:"entry_index"`
		URL        string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	replay, err := wt.engine.Replay(chi.URLParam(r, "rid"), req.EntryIndex, req.URL)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, results.ErrNotSubmission) {
			status = http.StatusNotFound
		}
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, replay)
}

// HandleReportResult flags a recipient result as reported on the phishing
// server. The change lands locally with the next snapshot; the poller is
// left alone.
func (h *Handlers) HandleReportResult(w http.ResponseWriter, r *http.Request) {
	wt, ok := h.watchFor(w, r)
	if !ok {
		return
	}
	snap := wt.engine.Snapshot()
	if snap == nil {
		respondError(w, http.StatusConflict, "no snapshot yet")
		return
	}
	if err := h.client.ReportResult(r.Context(), snap.URL, chi.URLParam(r, "rid")); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reported"})
}

// HandleCompleteCampaign marks a campaign completed server-side and stops
// its poller permanently.
func (h *Handlers) HandleCompleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	if err := h.client.CompleteCampaign(r.Context(), id); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.mu.Lock()
	if wt, exists := h.watches[id]; exists {
		wt.poller.Stop()
	}
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]string{"status": domain.CampaignComplete})
}

// HandleDeleteCampaign deletes a campaign server-side and tears down any
// active monitoring session.
func (h *Handlers) HandleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	if err := h.client.DeleteCampaign(r.Context(), id); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.mu.Lock()
	if wt, exists := h.watches[id]; exists {
		wt.poller.Stop()
		wt.engine.Teardown()
		delete(h.watches, id)
	}
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleSetMapPreference persists the map-view preference. Like the
// startup read, the new value takes effect for subsequent map requests in
// this process; other instances pick it up on their next start.
func (h *Handlers) HandleSetMapPreference(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusNotFound, "preference store not configured")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.SetUseMap(r.Context(), req.Enabled); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.mu.Lock()
	h.useMap = req.Enabled
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]bool{"use_map": req.Enabled})
}

// HandleCachedSnapshot serves the last raw snapshot cached by a previous
// watch session, so a restarted client can show data before the first
// poll cycle lands.
func (h *Handlers) HandleCachedSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusNotFound, "snapshot cache not configured")
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	snap, err := h.store.CachedSnapshot(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		respondError(w, http.StatusNotFound, "no cached snapshot")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// HandleStatsHistory serves the recorded per-cycle stats rows.
func (h *Handlers) HandleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusNotFound, "stats history not configured")
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.history.Recent(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// watchFor resolves the campaign id in the URL to an active watch.
func (h *Handlers) watchFor(w http.ResponseWriter, r *http.Request) (*watch, bool) {
	id, ok := campaignID(w, r)
	if !ok {
		return nil, false
	}
	h.mu.Lock()
	wt, exists := h.watches[id]
	h.mu.Unlock()
	if !exists {
		respondError(w, http.StatusNotFound, "campaign is not being watched")
		return nil, false
	}
	return wt, true
}

func campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return 0, false
	}
	return id, true
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
