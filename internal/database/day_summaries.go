package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hittracker/internal/models"
)

const daySummaryColumns = `date, assigned, returned, abandoned, submitted, approved, rejected, pending, paid,
        earnings, baseline`

func scanDaySummary(row rowScanner) (*models.DaySummary, error) {
	var (
		day      models.DaySummary
		baseline sql.NullString
	)
	err := row.Scan(
		&day.Date,
		&day.Assigned,
		&day.Returned,
		&day.Abandoned,
		&day.Submitted,
		&day.Approved,
		&day.Rejected,
		&day.Pending,
		&day.Paid,
		&day.Earnings,
		&baseline,
	)
	if err != nil {
		return nil, err
	}
	if baseline.Valid && baseline.String != "" {
		day.Day = &models.Baseline{}
		if err := json.Unmarshal([]byte(baseline.String), day.Day); err != nil {
			return nil, fmt.Errorf("decode baseline of %s: %w", day.Date, err)
		}
	}
	return &day, nil
}

func (t *tx) queryDaySummaries(ctx context.Context, query string, args ...any) ([]*models.DaySummary, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []*models.DaySummary
	for rows.Next() {
		day, err := scanDaySummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan day summary: %w", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return days, nil
}

// GetDaySummary возвращает сводку за день или nil, если её нет
func (t *tx) GetDaySummary(ctx context.Context, date string) (*models.DaySummary, error) {
	query := `SELECT ` + daySummaryColumns + ` FROM day_summaries WHERE date = ?`

	day, err := scanDaySummary(t.tx.QueryRowContext(ctx, query, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get day summary %s: %w", date, err)
	}
	return day, nil
}

// PutDaySummary создает или перезаписывает сводку за день
func (t *tx) PutDaySummary(ctx context.Context, day *models.DaySummary) error {
	if day.Date == "" {
		return errors.New("day summary date is required")
	}

	var baseline sql.NullString
	if day.Day != nil {
		data, err := json.Marshal(day.Day)
		if err != nil {
			return fmt.Errorf("encode baseline of %s: %w", day.Date, err)
		}
		baseline = sql.NullString{String: string(data), Valid: true}
	}

	query := `
        INSERT INTO day_summaries (` + daySummaryColumns + `, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(date) DO UPDATE SET
            assigned = excluded.assigned,
            returned = excluded.returned,
            abandoned = excluded.abandoned,
            submitted = excluded.submitted,
            approved = excluded.approved,
            rejected = excluded.rejected,
            pending = excluded.pending,
            paid = excluded.paid,
            earnings = excluded.earnings,
            baseline = excluded.baseline,
            updated_at = excluded.updated_at
    `
	_, err := t.tx.ExecContext(ctx, query,
		day.Date,
		day.Assigned,
		day.Returned,
		day.Abandoned,
		day.Submitted,
		day.Approved,
		day.Rejected,
		day.Pending,
		day.Paid,
		day.Earnings.String(),
		baseline,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to put day summary %s: %w", day.Date, err)
	}
	return nil
}

// DaySummaries возвращает сводки за период включительно
func (t *tx) DaySummaries(ctx context.Context, from, to string) ([]*models.DaySummary, error) {
	query := `SELECT ` + daySummaryColumns + ` FROM day_summaries
        WHERE date BETWEEN ? AND ?
        ORDER BY date`
	return t.queryDaySummaries(ctx, query, from, to)
}

func (t *tx) AllDaySummaries(ctx context.Context) ([]*models.DaySummary, error) {
	query := `SELECT ` + daySummaryColumns + ` FROM day_summaries ORDER BY date`
	return t.queryDaySummaries(ctx, query)
}
