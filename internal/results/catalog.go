// Package results implements the reconciliation and aggregation engine for
// campaign monitoring: it merges fetched snapshots into per-recipient
// timelines, identity-stable table rows, deduplicated map markers and
// dashboard statistics. Everything here is derived data; rendering is left
// to the consumers of these structures.
package results

import (
	"time"

	"github.com/ignite/phishsim-monitor/internal/domain"
)

// StatusDescriptor carries the display metadata for a recipient status or
// event message: color, label class, icon and timeline marker style.
type StatusDescriptor struct {
	Status      string    `json:"status"`
	Label       string    `json:"label"`
	Color       string    `json:"color,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	MarkerStyle string    `json:"marker_style,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitzero"`
}

// statusCatalog mirrors the server's event vocabulary. New statuses may
// appear server-side without a client update, so lookups fail soft.
var statusCatalog = map[string]StatusDescriptor{
	domain.EventSent:          {Label: "label-success", Color: "#1abc9c", Icon: "fa-envelope", MarkerStyle: "ct-point-sent"},
	domain.CampaignQueued:     {Label: "label-info"},
	domain.CampaignInProgress: {Label: "label-primary"},
	domain.CampaignComplete:   {Label: "label-success"},
	domain.EventOpened:        {Label: "label-warning", Color: "#4CAF50", Icon: "fa-envelope-open", MarkerStyle: "ct-point-opened"},
	domain.EventClicked:       {Label: "label-clicked", Color: "#f05b4f", Icon: "fa-mouse-pointer", MarkerStyle: "ct-point-clicked"},
	domain.EventReported:      {Label: "label-info", Color: "#45d6ef", Icon: "fa-bullhorn", MarkerStyle: "ct-point-reported"},
	domain.StatusError:        {Label: "label-default", Color: "#6c7a89", Icon: "fa-times", MarkerStyle: "ct-point-error"},
	domain.EventSendingError:  {Label: "label-default", Color: "#6c7a89", Icon: "fa-times", MarkerStyle: "ct-point-error"},
	domain.EventDataSubmit:    {Label: "label-danger", Color: "#f05b4f", Icon: "fa-exclamation", MarkerStyle: "ct-point-clicked"},
	domain.StatusUnknown:      {Label: "label-default", Color: "#6c7a89", Icon: "fa-question", MarkerStyle: "ct-point-error"},
	domain.StatusSending:      {Label: "label-primary", Color: "#428bca", Icon: "fa-spinner", MarkerStyle: "ct-point-sending"},
	domain.StatusRetry:        {Label: "label-default", Color: "#6c7a89", Icon: "fa-clock-o", MarkerStyle: "ct-point-error"},
	domain.StatusScheduled:    {Label: "label-primary", Color: "#428bca", Icon: "fa-clock-o", MarkerStyle: "ct-point-sending"},
	domain.CampaignCreated:    {Label: "label-success", Icon: "fa-rocket"},
}

// Describe returns the display metadata for a status. Unknown statuses map
// to the "Unknown" descriptor rather than an error.
func Describe(status string) StatusDescriptor {
	d, ok := statusCatalog[status]
	if !ok {
		d = statusCatalog[domain.StatusUnknown]
	}
	d.Status = status
	return d
}

// DescribeAt is Describe plus the scheduled-send decoration: "Scheduled"
// and "Retrying" recipients carry the future send time for display.
func DescribeAt(status string, sendDate time.Time) StatusDescriptor {
	d := Describe(status)
	if status == domain.StatusScheduled || status == domain.StatusRetry {
		d.ScheduledAt = sendDate
	}
	return d
}

// MarkerColor returns the timeline chart marker color for an event message,
// with a neutral fallback for unknown messages.
func MarkerColor(message string) string {
	if d, ok := statusCatalog[message]; ok && d.Color != "" {
		return d.Color
	}
	return "#cccccc"
}
