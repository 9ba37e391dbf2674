package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"hittracker/internal/models"
)

type tx struct {
	tx *sql.Tx
}

const workItemColumns = `id, date, state, assignment_id, requester_id, requester_name, title, source,
        reward_amount, reward_currency, answer, feedback`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(row rowScanner) (*models.WorkItem, error) {
	var (
		item     models.WorkItem
		state    string
		amount   decimal.NullDecimal
		currency string
		answer   sql.NullString
	)
	err := row.Scan(
		&item.ID,
		&item.Date,
		&state,
		&item.AssignmentID,
		&item.RequesterID,
		&item.RequesterName,
		&item.Title,
		&item.Source,
		&amount,
		&currency,
		&answer,
		&item.Feedback,
	)
	if err != nil {
		return nil, err
	}

	item.State = models.State(state)
	if amount.Valid {
		item.Reward = &models.Reward{Amount: amount.Decimal, Currency: currency}
	}
	if answer.Valid && answer.String != "" {
		if err := json.Unmarshal([]byte(answer.String), &item.Answer); err != nil {
			return nil, fmt.Errorf("decode answer of %s: %w", item.ID, err)
		}
	}
	return &item, nil
}

func (t *tx) queryWorkItems(ctx context.Context, query string, args ...any) ([]*models.WorkItem, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// GetWorkItem возвращает работу по ID или nil, если её нет
func (t *tx) GetWorkItem(ctx context.Context, id string) (*models.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id = ?`

	item, err := scanWorkItem(t.tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work item %s: %w", id, err)
	}
	return item, nil
}

// PutWorkItem создает или полностью перезаписывает работу
func (t *tx) PutWorkItem(ctx context.Context, item *models.WorkItem) error {
	if item.ID == "" {
		return errors.New("work item id is required")
	}

	var (
		amount   decimal.NullDecimal
		currency string
		answer   sql.NullString
	)
	if item.Reward != nil {
		amount = decimal.NewNullDecimal(item.Reward.Amount)
		currency = item.Reward.Currency
	}
	if len(item.Answer) > 0 {
		data, err := json.Marshal(item.Answer)
		if err != nil {
			return fmt.Errorf("encode answer of %s: %w", item.ID, err)
		}
		answer = sql.NullString{String: string(data), Valid: true}
	}

	query := `
        INSERT INTO work_items (` + workItemColumns + `, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            date = excluded.date,
            state = excluded.state,
            assignment_id = excluded.assignment_id,
            requester_id = excluded.requester_id,
            requester_name = excluded.requester_name,
            title = excluded.title,
            source = excluded.source,
            reward_amount = excluded.reward_amount,
            reward_currency = excluded.reward_currency,
            answer = excluded.answer,
            feedback = excluded.feedback,
            updated_at = excluded.updated_at
    `
	_, err := t.tx.ExecContext(ctx, query,
		item.ID,
		item.Date,
		string(item.State),
		item.AssignmentID,
		item.RequesterID,
		item.RequesterName,
		item.Title,
		item.Source,
		amount,
		currency,
		answer,
		item.Feedback,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to put work item %s: %w", item.ID, err)
	}
	return nil
}

// WorkItemsByDate возвращает работы за период включительно
func (t *tx) WorkItemsByDate(ctx context.Context, from, to string) ([]*models.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items
        WHERE date BETWEEN ? AND ?
        ORDER BY date, id`
	return t.queryWorkItems(ctx, query, from, to)
}

// WorkItemsByState возвращает работы в указанном состоянии
func (t *tx) WorkItemsByState(ctx context.Context, state models.State) ([]*models.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items
        WHERE state = ?
        ORDER BY date, id`
	return t.queryWorkItems(ctx, query, string(state))
}

func (t *tx) AllWorkItems(ctx context.Context) ([]*models.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items ORDER BY date, id`
	return t.queryWorkItems(ctx, query)
}
