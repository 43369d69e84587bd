package results

import (
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/mileusna/useragent"

	"github.com/ignite/phishsim-monitor/internal/domain"
)

// ErrReplayNotConfirmed is returned when a credential replay is attempted
// without a confirmed destination URL.
var ErrReplayNotConfirmed = errors.New("replay destination not confirmed")

// ErrNotSubmission is returned when a replay is requested for a timeline
// entry that carries no captured form payload.
var ErrNotSubmission = errors.New("entry has no submitted payload")

// DeviceInfo is the decoded device/browser identity of an interaction
// event. Unparseable user-agent strings decode to "Unknown" fields rather
// than failing the timeline build.
type DeviceInfo struct {
	Category       string `json:"category"` // desktop, mobile or tablet
	OS             string `json:"os"`
	OSVersion      string `json:"os_version,omitempty"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version,omitempty"`
}

// TimelineEntry is one derived timeline element for a recipient. Exactly
// the fields relevant to the event's status are populated; rendering is
// the consumer's concern.
type TimelineEntry struct {
	Message   string            `json:"message"`
	Time      time.Time         `json:"time"`
	Status    StatusDescriptor  `json:"status"`
	Screened  bool              `json:"screened,omitempty"`
	Device    *DeviceInfo       `json:"device,omitempty"`
	Payload   url.Values        `json:"payload,omitempty"`
	ReplayURL string            `json:"replay_url,omitempty"`
	Error     string            `json:"error,omitempty"`
	Synthetic bool              `json:"synthetic,omitempty"`
}

// BuildTimeline filters the campaign event log down to the given recipient
// (matched by email) and derives an ordered timeline. Events keep the
// server's chronological order; no client-side re-sorting is applied.
// Events referencing no known recipient are someone else's and are simply
// skipped. If the recipient is currently Scheduled or Retrying, a
// synthetic trailing entry carries the pending send time.
func BuildTimeline(r domain.Result, events []domain.Event) []TimelineEntry {
	var timeline []TimelineEntry

	for _, ev := range events {
		if ev.Email == "" || ev.Email != r.Email {
			continue
		}

		entry := TimelineEntry{
			Message:  ev.Message,
			Time:     ev.Time,
			Status:   Describe(ev.Message),
			Screened: ev.IsScreened,
		}
		decodeDetails(&entry, ev)
		timeline = append(timeline, entry)
	}

	if r.Status == domain.StatusScheduled || r.Status == domain.StatusRetry {
		timeline = append(timeline, TimelineEntry{
			Message:   r.Status,
			Time:      r.SendDate,
			Status:    DescribeAt(r.Status, r.SendDate),
			Synthetic: true,
		})
	}

	return timeline
}

// decodeDetails decodes the status-dependent structured payload of an
// event into the entry. Malformed payloads are dropped silently; a broken
// detail blob must never abort the surrounding timeline build.
func decodeDetails(entry *TimelineEntry, ev domain.Event) {
	if ev.Details == "" {
		return
	}

	var details struct {
		domain.EventDetails
		domain.EventError
	}
	if err := json.Unmarshal([]byte(ev.Details), &details); err != nil {
		return
	}

	// Device identity only applies to browser-triggered events.
	if ev.Message == domain.EventClicked || ev.Message == domain.EventDataSubmit {
		if ua := details.Browser["user-agent"]; ua != "" {
			entry.Device = decodeUserAgent(ua)
		}
	}

	if ev.Message == domain.EventDataSubmit && details.Payload != nil {
		entry.Payload = url.Values{}
		for param, values := range details.Payload {
			switch param {
			case domain.RecipientParameter:
				// internal row id, never displayed
			case domain.ReplayURLParameter:
				if len(values) > 0 {
					entry.ReplayURL = values[0]
				}
			default:
				entry.Payload[param] = values
			}
		}
	}

	if details.Error != "" {
		// Error text is surfaced verbatim, no parsing.
		entry.Error = details.Error
	}
}

// decodeUserAgent resolves a raw user-agent string into a device/browser
// descriptor, falling back to "Unknown" for anything unparseable.
func decodeUserAgent(raw string) *DeviceInfo {
	ua := useragent.Parse(raw)

	info := &DeviceInfo{
		Category:       "desktop",
		OS:             ua.OS,
		OSVersion:      ua.OSVersion,
		Browser:        ua.Name,
		BrowserVersion: ua.Version,
	}
	switch {
	case ua.Tablet:
		info.Category = "tablet"
	case ua.Mobile:
		info.Category = "mobile"
	}
	if info.OS == "" {
		info.OS = domain.StatusUnknown
	}
	if info.Browser == "" {
		info.Browser = domain.StatusUnknown
	}
	return info
}

// ReplayRequest is a reconstructed form post for a captured credential
// submission: every non-reserved payload key becomes a form field.
type ReplayRequest struct {
	URL    string     `json:"url"`
	Fields url.Values `json:"fields"`
}

// BuildReplay reconstructs the form post for a Submitted Data entry.
// confirmedURL is the destination the operator approved; the entry's
// stored ReplayURL is only a prefill suggestion and is never used without
// confirmation.
func BuildReplay(entry TimelineEntry, confirmedURL string) (*ReplayRequest, error) {
	if entry.Message != domain.EventDataSubmit || entry.Payload == nil {
		return nil, ErrNotSubmission
	}
	if confirmedURL == "" {
		return nil, ErrReplayNotConfirmed
	}

	fields := url.Values{}
	for param, values := range entry.Payload {
		fields[param] = append([]string(nil), values...)
	}
	return &ReplayRequest{URL: confirmedURL, Fields: fields}, nil
}
