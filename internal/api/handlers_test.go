package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/phishsim-monitor/internal/config"
	"github.com/ignite/phishsim-monitor/internal/gophish"
	"github.com/ignite/phishsim-monitor/internal/storage"
)

const submissionDetails = `{"payload":{"rid":["b2"],"__original_url":["http://a.test/login"],"user":["bob"]},"browser":{"user-agent":"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"}}`

// fakePhishingServer serves the campaign API endpoints the handlers and
// their pollers hit.
func fakePhishingServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/api/campaigns/7/results", func(w http.ResponseWriter, r *http.Request) {
		details, _ := json.Marshal(submissionDetails)
		fmt.Fprintf(w, `{
			"id": 7,
			"name": "Q1 Awareness",
			"status": "In progress",
			"url": %q,
			"results": [
				{"id": "a1", "first_name": "Alice", "email": "alice@corp.test", "status": "Email Sent"},
				{"id": "b2", "first_name": "Bob", "email": "bob@corp.test", "status": "Submitted Data"}
			],
			"timeline": [
				{"email": "bob@corp.test", "message": "Email Sent", "time": "2026-02-10T09:00:00Z"},
				{"email": "bob@corp.test", "message": "Submitted Data", "time": "2026-02-10T09:05:00Z", "details": %s}
			]
		}`, server.URL, details)
	})
	mux.HandleFunc("/api/campaigns/7/stats", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total": 2, "sent": 2, "opened_real": 1, "clicked_real": 1, "submitted_data": 1}`)
	})
	mux.HandleFunc("/api/campaigns/summary", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"campaigns": [
			{"id": 7, "name": "Q1 Awareness", "status": "In progress",
			 "stats": {"total": 2, "sent": 2, "opened_real": 1, "clicked_real": 1, "submitted_data": 1}}
		]}`)
	})
	mux.HandleFunc("/api/campaigns/7/complete", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":"Campaign completed successfully!","success":true}`)
	})
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("rid") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testHandlers(t *testing.T) (*Handlers, http.Handler) {
	t.Helper()
	upstream := fakePhishingServer(t)
	client := gophish.NewClient(config.PhishingConfig{
		BaseURL:        upstream.URL,
		APIKey:         "test-key",
		TimeoutSeconds: 5,
	})
	h := NewHandlers(client, time.Hour)
	t.Cleanup(h.Shutdown)
	return h, SetupRoutes(h)
}

func doRequest(router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// watchAndWait starts a watch and blocks until the first snapshot lands.
func watchAndWait(t *testing.T, router http.Handler) {
	t.Helper()
	rec := doRequest(router, http.MethodPost, "/api/campaigns/7/watch", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	deadline := time.After(2 * time.Second)
	for {
		rec = doRequest(router, http.MethodGet, "/api/campaigns/7/table", nil)
		if rec.Code == http.StatusOK && rec.Body.String() != "null\n" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("first snapshot did not arrive in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHealthCheck(t *testing.T) {
	_, router := testHandlers(t)
	rec := doRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleDashboard(t *testing.T) {
	_, router := testHandlers(t)
	rec := doRequest(router, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Slices []struct {
			Key       string `json:"key"`
			Percent   int    `json:"percent"`
			Remainder int    `json:"remainder"`
		} `json:"slices"`
		Series []json.RawMessage `json:"series"`
		Rows   []struct {
			Name   string `json:"name"`
			Opened int    `json:"opened"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Slices, 5)
	for _, s := range resp.Slices {
		assert.Equal(t, 100, s.Percent+s.Remainder, "slice %q", s.Key)
	}
	assert.Len(t, resp.Series, 1)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "Q1 Awareness", resp.Rows[0].Name)
}

func TestWatchServesDerivedViews(t *testing.T) {
	_, router := testHandlers(t)
	watchAndWait(t, router)

	rec := doRequest(router, http.MethodGet, "/api/campaigns/7/table", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "a1", rows[0].ID)

	rec = doRequest(router, http.MethodGet, "/api/campaigns/7/charts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var charts struct {
		Tiles  []json.RawMessage `json:"tiles"`
		Points []json.RawMessage `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &charts))
	assert.Len(t, charts.Tiles, 4)
	assert.Len(t, charts.Points, 2)
}

func TestWatchIsIdempotent(t *testing.T) {
	h, router := testHandlers(t)
	watchAndWait(t, router)

	rec := doRequest(router, http.MethodPost, "/api/campaigns/7/watch", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h.mu.Lock()
	assert.Len(t, h.watches, 1)
	h.mu.Unlock()
}

func TestUnwatchedCampaignViews(t *testing.T) {
	_, router := testHandlers(t)

	rec := doRequest(router, http.MethodGet, "/api/campaigns/7/table", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/campaigns/not-a-number/table", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnwatchStopsSession(t *testing.T) {
	_, router := testHandlers(t)
	watchAndWait(t, router)

	rec := doRequest(router, http.MethodDelete, "/api/campaigns/7/watch", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/campaigns/7/table", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMapGatedByPreference(t *testing.T) {
	_, router := testHandlers(t)
	watchAndWait(t, router)

	// No store configured, so the map preference stays off.
	rec := doRequest(router, http.MethodGet, "/api/campaigns/7/map", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExpandAndCollapseRow(t *testing.T) {
	_, router := testHandlers(t)
	watchAndWait(t, router)

	rec := doRequest(router, http.MethodPost, "/api/campaigns/7/rows/b2/expand", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var row struct {
		ID       string            `json:"id"`
		Timeline []json.RawMessage `json:"timeline"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "b2", row.ID)
	assert.Len(t, row.Timeline, 2)

	rec = doRequest(router, http.MethodPost, "/api/campaigns/7/rows/b2/collapse", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(router, http.MethodPost, "/api/campaigns/7/rows/ghost/expand", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReplay(t *testing.T) {
	_, router := testHandlers(t)
	watchAndWait(t, router)

	doRequest(router, http.MethodPost, "/api/campaigns/7/rows/b2/expand", nil)

	body, _ := json.Marshal(map[string]interface{}{
		"entry_index": 1,
		"url":         "http://a.test/login",
	})
	rec := doRequest(router, http.MethodPost, "/api/campaigns/7/rows/b2/replay", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var replay struct {
		URL    string              `json:"url"`
		Fields map[string][]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replay))
	assert.Equal(t, "http://a.test/login", replay.URL)
	assert.Equal(t, []string{"bob"}, replay.Fields["user"])
	assert.NotContains(t, replay.Fields, "rid")

	// Unconfirmed destination.
	body, _ = json.Marshal(map[string]interface{}{"entry_index": 1})
	rec = doRequest(router, http.MethodPost, "/api/campaigns/7/rows/b2/replay", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Entry 0 is a send event, not a submission.
	body, _ = json.Marshal(map[string]interface{}{"entry_index": 0, "url": "http://a.test/login"})
	rec = doRequest(router, http.MethodPost, "/api/campaigns/7/rows/b2/replay", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReportResult(t *testing.T) {
	_, router := testHandlers(t)
	watchAndWait(t, router)

	rec := doRequest(router, http.MethodPost, "/api/campaigns/7/rows/a1/report", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCompleteCampaignStopsPoller(t *testing.T) {
	h, router := testHandlers(t)
	watchAndWait(t, router)

	rec := doRequest(router, http.MethodPost, "/api/campaigns/7/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	h.mu.Lock()
	wt := h.watches[7]
	h.mu.Unlock()
	require.NotNil(t, wt)
	assert.False(t, wt.poller.Running())

	// The derived views stay served for the completed campaign.
	rec = doRequest(router, http.MethodGet, "/api/campaigns/7/table", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func withStore(t *testing.T, h *Handlers) *storage.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := storage.New(rdb)
	h.SetStore(context.Background(), store)
	return store
}

func TestHandleSetMapPreference(t *testing.T) {
	h, router := testHandlers(t)
	withStore(t, h)
	watchAndWait(t, router)

	// Off by default.
	rec := doRequest(router, http.MethodGet, "/api/campaigns/7/map", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body, _ := json.Marshal(map[string]bool{"enabled": true})
	rec = doRequest(router, http.MethodPut, "/api/preferences/map", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/campaigns/7/map", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSetMapPreferenceNoStore(t *testing.T) {
	_, router := testHandlers(t)
	body, _ := json.Marshal(map[string]bool{"enabled": true})
	rec := doRequest(router, http.MethodPut, "/api/preferences/map", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCachedSnapshot(t *testing.T) {
	h, router := testHandlers(t)
	withStore(t, h)

	// Nothing cached until a watch session has completed a cycle.
	rec := doRequest(router, http.MethodGet, "/api/campaigns/7/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	watchAndWait(t, router)

	// The cache write happens just after the reconcile that watchAndWait
	// observed, so give it a moment.
	deadline := time.After(2 * time.Second)
	for {
		rec = doRequest(router, http.MethodGet, "/api/campaigns/7/snapshot", nil)
		if rec.Code == http.StatusOK {
			break
		}
		select {
		case <-deadline:
			t.Fatal("cached snapshot did not appear in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	var snap struct {
		ID      int64             `json:"id"`
		Results []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(7), snap.ID)
	assert.Len(t, snap.Results, 2)
}

func TestHandleStatsHistoryNotConfigured(t *testing.T) {
	_, router := testHandlers(t)
	rec := doRequest(router, http.MethodGet, "/api/campaigns/7/history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
