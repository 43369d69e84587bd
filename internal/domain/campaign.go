package domain

import (
	"net/url"
	"time"
)

// Campaign status values reported by the phishing server.
const (
	CampaignQueued     = "Queued"
	CampaignInProgress = "In progress"
	CampaignComplete   = "Completed"
	CampaignCreated    = "Campaign Created"
)

// Per-recipient status and event message values. The server uses the same
// vocabulary for a recipient's current status and for event log messages.
const (
	StatusSending   = "Sending"
	StatusScheduled = "Scheduled"
	StatusRetry     = "Retrying"
	StatusError     = "Error"
	StatusUnknown   = "Unknown"

	EventSent         = "Email Sent"
	EventOpened       = "Email Opened"
	EventClicked      = "Clicked Link"
	EventDataSubmit   = "Submitted Data"
	EventReported     = "Email Reported"
	EventSendingError = "Error Sending Email"
)

// RecipientParameter is the reserved payload key carrying the result id on
// captured form submissions.
const RecipientParameter = "rid"

// ReplayURLParameter is the reserved payload key carrying the original
// landing-page URL for credential replay.
const ReplayURLParameter = "__original_url"

// Campaign is a full snapshot of one campaign as fetched from the server:
// all recipients, the complete event log, and the stats aggregate. The
// client never mutates a Campaign; it is replaced wholesale on each fetch.
type Campaign struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	URL         string    `json:"url"`
	CreatedDate time.Time `json:"created_date"`
	LaunchDate  time.Time `json:"launch_date"`
	Results     []Result  `json:"results"`
	Timeline    []Event   `json:"timeline"`
	Stats       Stats     `json:"stats"`
}

// IsTerminal reports whether the campaign has finished processing events.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignComplete
}

// Result is one target of a campaign. The result id is stable across
// snapshot fetches and is the reconciliation key for table rows.
type Result struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Position  string    `json:"position"`
	Status    string    `json:"status"`
	Reported  bool      `json:"reported"`
	SendDate  time.Time `json:"send_date"`
	IP        string    `json:"ip"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// HasLocation reports whether the result carries a resolved geolocation.
// Unresolved addresses are stored as a (0, 0) coordinate pair.
func (r *Result) HasLocation() bool {
	return r.Latitude != 0 || r.Longitude != 0
}

// Event is one entry in a campaign's event log. Events are immutable and
// attributed to a recipient by email address. Details is a JSON document
// whose shape depends on Message (see EventDetails and EventError).
type Event struct {
	CampaignID int64     `json:"campaign_id"`
	Email      string    `json:"email"`
	Time       time.Time `json:"time"`
	Message    string    `json:"message"`
	Details    string    `json:"details"`
	IsScreened bool      `json:"is_screened"`
}

// EventDetails is the structured payload attached to interaction events
// (opens, clicks, form submissions). Browser holds the reported client
// metadata, keyed the way the server records it ("user-agent", "address").
type EventDetails struct {
	Payload url.Values        `json:"payload"`
	Browser map[string]string `json:"browser"`
}

// EventError is the payload attached to send-failure events.
type EventError struct {
	Error string `json:"error"`
}

// Stats holds the per-campaign counters returned by the stats endpoint.
// Counters the server omits unmarshal to zero, so absence is normalized
// here rather than defaulted at every use site.
type Stats struct {
	Total           int `json:"total"`
	Sent            int `json:"sent"`
	OpenedReal      int `json:"opened_real"`
	OpenedScreened  int `json:"opened_screened"`
	ClickedReal     int `json:"clicked_real"`
	ClickedScreened int `json:"clicked_screened"`
	SubmittedData   int `json:"submitted_data"`
	EmailReported   int `json:"email_reported"`
	Error           int `json:"error"`
}

// Counters returns the stats as a keyed map for aggregation. Real and
// screened opens/clicks are combined, matching how the dashboard presents
// them; the screened-only breakdown stays available on the struct fields.
func (s Stats) Counters() map[string]int {
	return map[string]int{
		"sent":           s.Sent,
		"opened":         s.OpenedReal + s.OpenedScreened,
		"clicked":        s.ClickedReal + s.ClickedScreened,
		"submitted_data": s.SubmittedData,
		"email_reported": s.EmailReported,
		"error":          s.Error,
	}
}
