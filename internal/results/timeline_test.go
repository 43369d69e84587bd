package results

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/phishsim-monitor/internal/domain"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func detailsJSON(t *testing.T, payload map[string][]string, browser map[string]string) string {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"payload": payload,
		"browser": browser,
	})
	require.NoError(t, err)
	return string(data)
}

func TestBuildTimelineFiltersByRecipientEmail(t *testing.T) {
	r := domain.Result{ID: "a1", Email: "alice@corp.test", Status: domain.EventOpened}
	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{Email: "alice@corp.test", Message: domain.EventSent, Time: base},
		{Email: "bob@corp.test", Message: domain.EventSent, Time: base.Add(time.Minute)},
		{Email: "", Message: domain.CampaignCreated, Time: base.Add(-time.Hour)},
		{Email: "alice@corp.test", Message: domain.EventOpened, Time: base.Add(2 * time.Minute)},
	}

	timeline := BuildTimeline(r, events)
	require.Len(t, timeline, 2)
	assert.Equal(t, domain.EventSent, timeline[0].Message)
	assert.Equal(t, domain.EventOpened, timeline[1].Message)
	// Server order is preserved, no client-side re-sorting.
	assert.True(t, timeline[0].Time.Before(timeline[1].Time))
}

func TestBuildTimelineIsDeterministic(t *testing.T) {
	r := domain.Result{ID: "a1", Email: "alice@corp.test", Status: domain.EventClicked}
	events := []domain.Event{
		{Email: "alice@corp.test", Message: domain.EventSent, Time: time.Unix(100, 0).UTC()},
		{Email: "alice@corp.test", Message: domain.EventClicked, Time: time.Unix(200, 0).UTC(),
			Details: `{"browser":{"user-agent":"` + chromeUA + `"}}`},
	}

	first := BuildTimeline(r, events)
	second := BuildTimeline(r, events)
	assert.True(t, reflect.DeepEqual(first, second))
}

func TestBuildTimelineDecodesDeviceInfo(t *testing.T) {
	r := domain.Result{ID: "a1", Email: "alice@corp.test", Status: domain.EventClicked}
	events := []domain.Event{
		{Email: "alice@corp.test", Message: domain.EventClicked, Time: time.Unix(200, 0).UTC(),
			Details: detailsJSON(t, nil, map[string]string{"user-agent": chromeUA})},
	}

	timeline := BuildTimeline(r, events)
	require.Len(t, timeline, 1)
	require.NotNil(t, timeline[0].Device)
	assert.Equal(t, "desktop", timeline[0].Device.Category)
	assert.Equal(t, "Windows", timeline[0].Device.OS)
	assert.Equal(t, "Chrome", timeline[0].Device.Browser)
}

func TestBuildTimelineUnparseableUserAgentFailsSoft(t *testing.T) {
	r := domain.Result{ID: "a1", Email: "alice@corp.test", Status: domain.EventClicked}
	events := []domain.Event{
		{Email: "alice@corp.test", Message: domain.EventClicked, Time: time.Unix(200, 0).UTC(),
			Details: detailsJSON(t, nil, map[string]string{"user-agent": "definitely-not-a-browser/0.0"})},
	}

	timeline := BuildTimeline(r, events)
	require.Len(t, timeline, 1)
	require.NotNil(t, timeline[0].Device)
	assert.Equal(t, domain.StatusUnknown, timeline[0].Device.OS)
}

func TestBuildTimelineMalformedDetailsDoNotAbort(t *testing.T) {
	r := domain.Result{ID: "a1", Email: "alice@corp.test", Status: domain.EventOpened}
	events := []domain.Event{
		{Email: "alice@corp.test", Message: domain.EventClicked, Time: time.Unix(100, 0).UTC(), Details: "{not json"},
		{Email: "alice@corp.test", Message: domain.EventOpened, Time: time.Unix(200, 0).UTC()},
	}

	timeline := BuildTimeline(r, events)
	require.Len(t, timeline, 2)
	assert.Nil(t, timeline[0].Device)
	assert.Nil(t, timeline[0].Payload)
}

func TestBuildTimelineSubmittedDataExcludesReservedKeys(t *testing.T) {
	r := domain.Result{ID: "x", Email: "bob@corp.test", Status: domain.EventDataSubmit}
	events := []domain.Event{
		{Email: "bob@corp.test", Message: domain.EventDataSubmit, Time: time.Unix(300, 0).UTC(),
			Details: detailsJSON(t, map[string][]string{
				"rid":            {"x"},
				"__original_url": {"http://a.test/login"},
				"user":           {"bob"},
			}, map[string]string{"user-agent": chromeUA})},
	}

	timeline := BuildTimeline(r, events)
	require.Len(t, timeline, 1)

	entry := timeline[0]
	// Only the non-reserved parameter is displayed.
	assert.Equal(t, []string{"bob"}, entry.Payload["user"])
	assert.NotContains(t, entry.Payload, "rid")
	assert.NotContains(t, entry.Payload, "__original_url")
	// The replay target is retained separately.
	assert.Equal(t, "http://a.test/login", entry.ReplayURL)
}

func TestBuildTimelineErrorPayloadVerbatim(t *testing.T) {
	r := domain.Result{ID: "e", Email: "erin@corp.test", Status: domain.StatusError}
	events := []domain.Event{
		{Email: "erin@corp.test", Message: domain.EventSendingError, Time: time.Unix(50, 0).UTC(),
			Details: `{"error":"dial tcp 10.0.0.1:25: i/o timeout"}`},
	}

	timeline := BuildTimeline(r, events)
	require.Len(t, timeline, 1)
	assert.Equal(t, "dial tcp 10.0.0.1:25: i/o timeout", timeline[0].Error)
}

func TestBuildTimelineSyntheticScheduledEntry(t *testing.T) {
	sendDate := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r := domain.Result{ID: "s", Email: "sam@corp.test", Status: domain.StatusScheduled, SendDate: sendDate}
	events := []domain.Event{
		{Email: "sam@corp.test", Message: domain.EventSendingError, Time: time.Unix(50, 0).UTC()},
	}

	timeline := BuildTimeline(r, events)
	require.Len(t, timeline, 2)

	last := timeline[len(timeline)-1]
	assert.True(t, last.Synthetic)
	assert.Equal(t, domain.StatusScheduled, last.Message)
	assert.Equal(t, sendDate, last.Status.ScheduledAt)
}

func TestBuildTimelineNoSyntheticEntryForActiveStatus(t *testing.T) {
	r := domain.Result{ID: "a1", Email: "alice@corp.test", Status: domain.EventOpened}
	timeline := BuildTimeline(r, nil)
	assert.Empty(t, timeline)
}

func TestBuildReplay(t *testing.T) {
	entry := TimelineEntry{
		Message:   domain.EventDataSubmit,
		Payload:   map[string][]string{"user": {"bob"}, "pass": {"hunter2"}},
		ReplayURL: "http://a.test/login",
	}

	// No confirmed destination: the operation does not proceed.
	_, err := BuildReplay(entry, "")
	assert.ErrorIs(t, err, ErrReplayNotConfirmed)

	// Confirmed destination (prefilled from the stored replay URL).
	replay, err := BuildReplay(entry, entry.ReplayURL)
	require.NoError(t, err)
	assert.Equal(t, "http://a.test/login", replay.URL)
	assert.Equal(t, []string{"bob"}, replay.Fields["user"])
	assert.Equal(t, []string{"hunter2"}, replay.Fields["pass"])

	// The reconstructed fields are a copy, not an alias.
	replay.Fields.Set("user", "mallory")
	assert.Equal(t, []string{"bob"}, entry.Payload["user"])
}

func TestBuildReplayRejectsNonSubmission(t *testing.T) {
	entry := TimelineEntry{Message: domain.EventOpened}
	_, err := BuildReplay(entry, "http://a.test/login")
	assert.ErrorIs(t, err, ErrNotSubmission)
}
