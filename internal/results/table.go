package results

import (
	"time"

	"github.com/ignite/phishsim-monitor/internal/domain"
)

// Row is one recipient row of the results table. Identity is the result
// id and never changes across refresh cycles; sort order belongs to the
// presentation sink. Timeline is populated only while the row is expanded.
type Row struct {
	ID        string          `json:"id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	Position  string          `json:"position"`
	Status    string          `json:"status"`
	Reported  bool            `json:"reported"`
	SendDate  time.Time       `json:"send_date"`
	Timeline  []TimelineEntry `json:"timeline,omitempty"`
}

// TableReconciler maps recipient records to row-identity-preserving table
// updates. Rows keep their insertion order; reconciliation never reorders
// them as a side effect of updating values. Expansion state is keyed by
// result id and survives refresh cycles.
type TableReconciler struct {
	rows     []*Row
	index    map[string]*Row
	expanded map[string]bool
}

// NewTableReconciler creates an empty reconciler.
func NewTableReconciler() *TableReconciler {
	return &TableReconciler{
		index:    make(map[string]*Row),
		expanded: make(map[string]bool),
	}
}

// Reconcile applies a change set to the table. New recipients become new
// rows; changed recipients have only their mutable columns (status,
// reported flag, send date) replaced in place. Expanded rows get their
// timeline rebuilt from the current event log; collapsed rows are left
// alone and rebuilt lazily on expansion. The returned slice contains only
// the touched rows; untouched rows keep their previous *Row unchanged.
func (t *TableReconciler) Reconcile(cs ChangeSet, recipients []domain.Result, events []domain.Event) []*Row {
	byID := make(map[string]domain.Result, len(recipients))
	for _, r := range recipients {
		byID[r.ID] = r
	}

	var touched []*Row

	for _, id := range cs.New {
		r, ok := byID[id]
		if !ok {
			continue
		}
		row := &Row{
			ID:        r.ID,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Email:     r.Email,
			Position:  r.Position,
			Status:    r.Status,
			Reported:  r.Reported,
			SendDate:  r.SendDate,
		}
		t.rows = append(t.rows, row)
		t.index[id] = row
		touched = append(touched, row)
	}

	for _, id := range cs.Changed {
		r, ok := byID[id]
		if !ok {
			continue
		}
		row, ok := t.index[id]
		if !ok {
			continue
		}
		row.Status = r.Status
		row.Reported = r.Reported
		row.SendDate = r.SendDate
		if t.expanded[id] {
			row.Timeline = BuildTimeline(r, events)
		}
		touched = append(touched, row)
	}

	return touched
}

// Rows returns all rows in stable insertion order.
func (t *TableReconciler) Rows() []*Row {
	return t.rows
}

// Row returns the row for a result id, or nil.
func (t *TableReconciler) Row(id string) *Row {
	return t.index[id]
}

// Expand marks a row as expanded and builds its timeline from the given
// recipient record and event log.
func (t *TableReconciler) Expand(id string, recipients []domain.Result, events []domain.Event) *Row {
	row, ok := t.index[id]
	if !ok {
		return nil
	}
	t.expanded[id] = true
	for _, r := range recipients {
		if r.ID == id {
			row.Timeline = BuildTimeline(r, events)
			break
		}
	}
	return row
}

// Collapse clears a row's expansion state and drops its timeline.
func (t *TableReconciler) Collapse(id string) {
	delete(t.expanded, id)
	if row, ok := t.index[id]; ok {
		row.Timeline = nil
	}
}

// IsRowExpanded reports whether a row is currently showing its timeline.
func (t *TableReconciler) IsRowExpanded(id string) bool {
	return t.expanded[id]
}
