package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hittracker/internal/calendar"
	"hittracker/internal/domain"
	"hittracker/internal/models"
	"hittracker/internal/reconcile"
)

var ErrUnknownFormat = errors.New("unrecognized backup format")

// File is the backup document: every stored item and day summary.
type File struct {
	Hits []*models.WorkItem   `json:"hits"`
	Days []*models.DaySummary `json:"days"`
}

// legacyFile is the HITDB export layout.
type legacyFile struct {
	HIT   []legacyHit   `json:"HIT"`
	STATS []legacyStats `json:"STATS"`
}

type legacyHit struct {
	Date          string          `json:"date"`
	HitID         string          `json:"hitId"`
	RequesterID   string          `json:"requesterId"`
	RequesterName string          `json:"requesterName"`
	Title         string          `json:"title"`
	Reward        decimal.Decimal `json:"reward"`
	Status        string          `json:"status"`
	Feedback      string          `json:"feedback"`
}

type legacyStats struct {
	Date      string          `json:"date"`
	Submitted int             `json:"submitted"`
	Approved  int             `json:"approved"`
	Rejected  int             `json:"rejected"`
	Pending   int             `json:"pending"`
	Earnings  decimal.Decimal `json:"earnings"`
}

// ImportResult counts what an import stored and skipped.
type ImportResult struct {
	Hits        int `json:"hits"`
	SkippedHits int `json:"skipped_hits"`
	AutoPaid    int `json:"auto_paid"`
	Days        int `json:"days"`
	SkippedDays int `json:"skipped_days"`
}

type Archiver struct {
	store    domain.Store
	calendar *calendar.Calendar
	logger   *zerolog.Logger
}

func NewArchiver(store domain.Store, cal *calendar.Calendar, logger *zerolog.Logger) *Archiver {
	return &Archiver{store: store, calendar: cal, logger: logger}
}

// FileName is the default backup name for the current business date.
func (a *Archiver) FileName() string {
	return fmt.Sprintf("hittracker_backup_%s.json", a.calendar.BusinessDate())
}

// Export writes every item and day as a backup document.
func (a *Archiver) Export(ctx context.Context, w io.Writer) error {
	var f File
	err := a.store.View(ctx, func(tx domain.Tx) error {
		var err error
		if f.Hits, err = tx.AllWorkItems(ctx); err != nil {
			return err
		}
		f.Days, err = tx.AllDaySummaries(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("load backup data: %w", err)
	}
	if f.Hits == nil {
		f.Hits = []*models.WorkItem{}
	}
	if f.Days == nil {
		f.Days = []*models.DaySummary{}
	}

	if err := json.NewEncoder(w).Encode(f); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	a.logger.Info().Int("hits", len(f.Hits)).Int("days", len(f.Days)).Msg("Backup exported")
	return nil
}

// Decode reads a backup document or a HITDB export.
func Decode(r io.Reader) (*File, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}

	switch {
	case raw["hits"] != nil && raw["days"] != nil:
		var f File
		if err := json.Unmarshal(raw["hits"], &f.Hits); err != nil {
			return nil, fmt.Errorf("decode hits: %w", err)
		}
		if err := json.Unmarshal(raw["days"], &f.Days); err != nil {
			return nil, fmt.Errorf("decode days: %w", err)
		}
		return &f, nil
	case raw["HIT"] != nil && raw["STATS"] != nil:
		var legacy legacyFile
		if err := json.Unmarshal(raw["HIT"], &legacy.HIT); err != nil {
			return nil, fmt.Errorf("decode HITDB hits: %w", err)
		}
		if err := json.Unmarshal(raw["STATS"], &legacy.STATS); err != nil {
			return nil, fmt.Errorf("decode HITDB stats: %w", err)
		}
		return convertLegacy(legacy), nil
	default:
		return nil, ErrUnknownFormat
	}
}

func convertLegacy(legacy legacyFile) *File {
	f := &File{}
	for _, h := range legacy.HIT {
		status, _, _ := strings.Cut(h.Status, " ")
		if status == string(models.StatePending) {
			status = string(models.StateSubmitted)
		}
		f.Hits = append(f.Hits, &models.WorkItem{
			ID:            h.HitID,
			Date:          strings.ReplaceAll(h.Date, "-", ""),
			RequesterID:   h.RequesterID,
			RequesterName: h.RequesterName,
			Title:         h.Title,
			Reward:        &models.Reward{Amount: h.Reward},
			State:         models.State(status),
			Feedback:      h.Feedback,
		})
	}
	for _, s := range legacy.STATS {
		date := strings.ReplaceAll(s.Date, "-", "")
		day := models.NewDaySummary(date)
		day.Day = &models.Baseline{
			Date:      date,
			Submitted: s.Submitted,
			Approved:  s.Approved,
			Rejected:  s.Rejected,
			Pending:   s.Pending,
			Earnings:  s.Earnings,
		}
		f.Days = append(f.Days, day)
	}
	return f
}

// Import decodes r and stores its contents.
func (a *Archiver) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	f, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return a.Store(ctx, f)
}

// Store writes f in one transaction. Items need an id, a requester and a
// state; Approved and Submitted items dated more than 31 days before the
// business date are stored as Paid. Days need a date and a baseline with
// nonzero earnings, and their counts are recounted from stored items.
func (a *Archiver) Store(ctx context.Context, f *File) (*ImportResult, error) {
	cutoff, err := calendar.AddDays(a.calendar.BusinessDate(), -models.AutoPaidAfterDays)
	if err != nil {
		return nil, err
	}

	var res ImportResult
	err = a.store.Update(ctx, func(tx domain.Tx) error {
		for _, item := range f.Hits {
			if item == nil || item.ID == "" || item.RequesterID == "" || item.State == "" {
				res.SkippedHits++
				continue
			}
			if autoPaid(item, cutoff) {
				res.AutoPaid++
			}
			if err := tx.PutWorkItem(ctx, item); err != nil {
				return fmt.Errorf("store hit %s: %w", item.ID, err)
			}
			res.Hits++
		}

		for _, day := range f.Days {
			if day == nil || day.Date == "" || day.Day == nil || day.Day.Earnings.IsZero() {
				res.SkippedDays++
				continue
			}
			items, err := tx.WorkItemsByDate(ctx, day.Date, day.Date)
			if err != nil {
				return fmt.Errorf("recount %s: %w", day.Date, err)
			}
			recounted := reconcile.Count(day.Date, items)
			recounted.Day = day.Day
			if err := tx.PutDaySummary(ctx, recounted); err != nil {
				return fmt.Errorf("store day %s: %w", day.Date, err)
			}
			res.Days++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info().
		Int("hits", res.Hits).
		Int("skipped_hits", res.SkippedHits).
		Int("auto_paid", res.AutoPaid).
		Int("days", res.Days).
		Int("skipped_days", res.SkippedDays).
		Msg("Backup imported")
	return &res, nil
}

func autoPaid(item *models.WorkItem, cutoff string) bool {
	if item.State != models.StateApproved && item.State != models.StateSubmitted {
		return false
	}
	if item.Date >= cutoff {
		return false
	}
	item.State = models.StatePaid
	return true
}
