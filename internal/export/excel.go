package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"hittracker/internal/domain"
	"hittracker/internal/models"
	"hittracker/internal/reconcile"
)

const (
	SheetDays  = "Days"
	SheetItems = "Items"
)

var dayHeaders = []string{
	"Date", "Assigned", "Returned", "Abandoned", "Submitted", "Approved", "Rejected", "Pending", "Paid", "Earnings",
	"Dashboard Submitted", "Dashboard Approved", "Dashboard Rejected", "Dashboard Pending", "Dashboard Earnings", "Settled",
}

var itemHeaders = []string{
	"Date", "HIT ID", "Requester ID", "Requester", "Title", "State", "Reward", "Feedback",
}

type Exporter struct {
	store  domain.Store
	dir    string
	logger *zerolog.Logger
}

func NewExporter(store domain.Store, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, dir: dir, logger: logger}
}

// Export writes the workbook for w into the export directory and returns its path.
func (e *Exporter) Export(ctx context.Context, w models.Window) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f, err := e.Build(ctx, w)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(e.dir, fmt.Sprintf("hits_%s_to_%s.xlsx", w.Start, w.End))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().Str("path", path).Str("from", w.Start).Str("to", w.End).Msg("Workbook exported")
	return path, nil
}

// Build assembles the workbook for the inclusive window w.
func (e *Exporter) Build(ctx context.Context, w models.Window) (*excelize.File, error) {
	var (
		days  []*models.DaySummary
		items []*models.WorkItem
	)
	err := e.store.View(ctx, func(tx domain.Tx) error {
		var err error
		if days, err = tx.DaySummaries(ctx, w.Start, w.End); err != nil {
			return err
		}
		items, err = tx.WorkItemsByDate(ctx, w.Start, w.End)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load export data: %w", err)
	}

	f := excelize.NewFile()
	if err := writeDays(f, days); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeItems(f, items); err != nil {
		f.Close()
		return nil, err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex(SheetDays); err == nil {
		f.SetActiveSheet(index)
	}
	return f, nil
}

func writeDays(f *excelize.File, days []*models.DaySummary) error {
	if _, err := f.NewSheet(SheetDays); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := writeHeader(f, SheetDays, dayHeaders); err != nil {
		return err
	}

	for i, d := range days {
		row := []any{
			d.Date, d.Assigned, d.Returned, d.Abandoned, d.Submitted, d.Approved, d.Rejected, d.Pending, d.Paid,
			d.Earnings.InexactFloat64(),
		}
		if d.Day != nil {
			row = append(row, d.Day.Submitted, d.Day.Approved, d.Day.Rejected, d.Day.Pending, d.Day.Earnings.InexactFloat64())
		} else {
			row = append(row, nil, nil, nil, nil, nil)
		}
		row = append(row, reconcile.IsSettled(d))

		if err := writeRow(f, SheetDays, i+2, row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(SheetDays, "A", "A", 12)
	_ = f.SetColWidth(SheetDays, "K", "O", 20)
	return nil
}

func writeItems(f *excelize.File, items []*models.WorkItem) error {
	if _, err := f.NewSheet(SheetItems); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := writeHeader(f, SheetItems, itemHeaders); err != nil {
		return err
	}

	for i, it := range items {
		row := []any{
			it.Date, it.ID, it.RequesterID, it.RequesterName, it.Title, string(it.State),
			it.RewardAmount().InexactFloat64(), it.Feedback,
		}
		if err := writeRow(f, SheetItems, i+2, row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(SheetItems, "B", "D", 20)
	_ = f.SetColWidth(SheetItems, "E", "E", 50)
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := writeRow(f, sheet, 1, row); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
