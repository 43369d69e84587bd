// Package postgres persists per-cycle campaign statistics so operators can
// chart campaign progress over time. Only raw counters are stored; derived
// views are always recomputed from snapshots.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/phishsim-monitor/internal/domain"
)

// StatsHistory is an append-only log of campaign stats, one row per
// reconcile cycle.
type StatsHistory struct {
	db *sql.DB
}

// NewStatsHistory creates the repository on an existing database handle.
func NewStatsHistory(db *sql.DB) *StatsHistory {
	return &StatsHistory{db: db}
}

// StatsRow is one recorded cycle.
type StatsRow struct {
	CycleID    string       `json:"cycle_id"`
	CampaignID int64        `json:"campaign_id"`
	RecordedAt time.Time    `json:"recorded_at"`
	Stats      domain.Stats `json:"stats"`
}

// Record appends the stats observed during one reconcile cycle.
func (r *StatsHistory) Record(ctx context.Context, cycleID string, campaignID int64, s domain.Stats) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_stats_history (
			cycle_id, campaign_id, recorded_at,
			total, sent, opened_real, opened_screened,
			clicked_real, clicked_screened, submitted_data,
			email_reported, errors
		) VALUES ($1, $2, NOW(), $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, cycleID, campaignID,
		s.Total, s.Sent, s.OpenedReal, s.OpenedScreened,
		s.ClickedReal, s.ClickedScreened, s.SubmittedData,
		s.EmailReported, s.Error)
	if err != nil {
		return fmt.Errorf("recording stats history: %w", err)
	}
	return nil
}

// Recent returns the most recent recorded cycles for a campaign, newest
// first.
func (r *StatsHistory) Recent(ctx context.Context, campaignID int64, limit int) ([]StatsRow, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT cycle_id, campaign_id, recorded_at,
		       total, sent, opened_real, opened_screened,
		       clicked_real, clicked_screened, submitted_data,
		       email_reported, errors
		FROM campaign_stats_history
		WHERE campaign_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying stats history: %w", err)
	}
	defer rows.Close()

	var out []StatsRow
	for rows.Next() {
		var row StatsRow
		if err := rows.Scan(
			&row.CycleID, &row.CampaignID, &row.RecordedAt,
			&row.Stats.Total, &row.Stats.Sent, &row.Stats.OpenedReal, &row.Stats.OpenedScreened,
			&row.Stats.ClickedReal, &row.Stats.ClickedScreened, &row.Stats.SubmittedData,
			&row.Stats.EmailReported, &row.Stats.Error,
		); err != nil {
			return nil, fmt.Errorf("scanning stats history row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
