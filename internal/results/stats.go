package results

import (
	"time"

	"github.com/ignite/phishsim-monitor/internal/domain"
)

// summaryKeys is the allow-listed subset of stat counters that participate
// in dashboard summary slices, in display order. Unlisted counters (for
// example errors) are excluded from slice output but every campaign's own
// total still feeds the shared denominator.
var summaryKeys = []struct {
	Key   string
	Title string
}{
	{"sent", domain.EventSent},
	{"opened", domain.EventOpened},
	{"email_reported", domain.EventReported},
	{"clicked", domain.EventClicked},
	{"submitted_data", domain.EventDataSubmit},
}

// Slice is one two-part donut: the observed share and its remainder.
// Remainder is derived as 100 - Percent by construction, never computed
// independently, so the pair always sums to exactly 100.
type Slice struct {
	Key       string `json:"key"`
	Status    string `json:"status"`
	Count     int    `json:"count"`
	Percent   int    `json:"percent"`
	Remainder int    `json:"remainder"`
	Color     string `json:"color,omitempty"`
}

// SeriesPoint is one campaign's success rate on the dashboard overview
// chart: x is the campaign creation time, y the percentage of recipients
// with a real (non-screened) click.
type SeriesPoint struct {
	CampaignID     int64     `json:"campaign_id"`
	Name           string    `json:"name"`
	Timestamp      time.Time `json:"timestamp"`
	SuccessPercent int       `json:"success_percent"`
}

// Dashboard is the multi-campaign aggregate view.
type Dashboard struct {
	Slices []Slice       `json:"slices"`
	Series []SeriesPoint `json:"series"`
}

// AggregateDashboard folds per-campaign statistics across a campaign set
// into normalized percentage slices and a success-rate series. The slice
// denominator is the sum of every campaign's total-recipient count; a
// campaign with zero total contributes a guarded 0% series point rather
// than a division error. Series order follows the input collection order.
func AggregateDashboard(campaigns []domain.Campaign) Dashboard {
	var dash Dashboard

	total := 0
	counts := make(map[string]int)
	for _, c := range campaigns {
		total += c.Stats.Total
		for key, n := range c.Stats.Counters() {
			counts[key] += n
		}
	}

	for _, sk := range summaryKeys {
		pct := percentOf(counts[sk.Key], total)
		dash.Slices = append(dash.Slices, Slice{
			Key:       sk.Key,
			Status:    sk.Title,
			Count:     counts[sk.Key],
			Percent:   pct,
			Remainder: 100 - pct,
			Color:     Describe(sk.Title).Color,
		})
	}

	for _, c := range campaigns {
		dash.Series = append(dash.Series, SeriesPoint{
			CampaignID:     c.ID,
			Name:           c.Name,
			Timestamp:      c.CreatedDate,
			SuccessPercent: percentOf(c.Stats.ClickedReal, c.Stats.Total),
		})
	}

	return dash
}

// CampaignTiles derives the four single-campaign donut tiles: emails sent,
// screened interactions, real opens and real clicks. Screened opens and
// screened clicks largely count the same probe traffic, so the screened
// tile takes the larger of the two rather than their sum.
func CampaignTiles(s domain.Stats) []Slice {
	denominator := s.Sent
	if denominator <= 0 {
		denominator = 1
	}

	screened := s.OpenedScreened
	if s.ClickedScreened > screened {
		screened = s.ClickedScreened
	}

	tiles := []Slice{
		{Key: "sent", Status: "Email Sent", Count: s.Sent, Color: "#1abc9c"},
		{Key: "screened", Status: "Email Screened", Count: screened, Color: "#FF9800"},
		{Key: "opened", Status: "Email Opened", Count: s.OpenedReal, Color: "#4CAF50"},
		{Key: "clicked", Status: "Link Clicked", Count: s.ClickedReal, Color: "#f05b4f"},
	}
	for i := range tiles {
		tiles[i].Percent = percentOf(tiles[i].Count, denominator)
		tiles[i].Remainder = 100 - tiles[i].Percent
	}
	return tiles
}

// EventPoint is one event on the campaign timeline chart.
type EventPoint struct {
	Email   string    `json:"email"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	Color   string    `json:"color"`
}

// EventSeries maps the raw event log onto timeline chart points, colored
// by status. Order follows the server's event order.
func EventSeries(events []domain.Event) []EventPoint {
	points := make([]EventPoint, 0, len(events))
	for _, ev := range events {
		points = append(points, EventPoint{
			Email:   ev.Email,
			Message: ev.Message,
			Time:    ev.Time,
			Color:   MarkerColor(ev.Message),
		})
	}
	return points
}

// percentOf is floor(count/total*100) with a guarded zero denominator.
func percentOf(count, total int) int {
	if total <= 0 {
		return 0
	}
	return count * 100 / total
}
