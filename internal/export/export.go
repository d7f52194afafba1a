// Package export writes queue reports as Excel workbooks.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bookingsync/internal/logging"
	"bookingsync/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	queueSheet   = "Queue"
	summarySheet = "Summary"
	timeLayout   = "2006-01-02 15:04"
)

var queueHeaders = []string{
	"Local ID", "Status", "Service", "Date", "Time", "Customer", "Phone",
	"Attempts", "Failures", "Next attempt", "Server ID", "Last error", "Created",
}

// Lister reads queue entries.
type Lister interface {
	List(ctx context.Context, statuses ...models.QueueStatus) ([]models.QueueEntry, error)
}

// QueueReport writes every entry matching statuses (all when empty) to a new
// workbook under dir and returns its path. Phones are masked.
func QueueReport(ctx context.Context, lister Lister, dir string, now time.Time, statuses ...models.QueueStatus) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	entries, err := lister.List(ctx, statuses...)
	if err != nil {
		return "", fmt.Errorf("list queue: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(queueSheet)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeEntries(f, entries); err != nil {
		return "", err
	}
	if err := writeSummary(f, entries, now); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	path := filepath.Join(dir, fmt.Sprintf("queue_%s.xlsx", now.Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

func writeEntries(f *excelize.File, entries []models.QueueEntry) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for col, h := range queueHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(queueSheet, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(queueHeaders), 1)
	_ = f.SetCellStyle(queueSheet, "A1", last, headerStyle)

	failedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})

	for i, e := range entries {
		row := i + 2
		values := []any{
			e.LocalID,
			string(e.Status),
			e.Draft.ServiceName,
			e.Draft.Schedule.Date,
			e.Draft.Schedule.TimeLabel,
			e.Draft.Customer.Name,
			logging.MaskPhone(e.Draft.Customer.Phone),
			e.AttemptCount,
			e.Failures,
			formatTime(e.NextAttemptAt),
			deref(e.ServerID),
			deref(e.LastError),
			e.CreatedAt.Format(timeLayout),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(queueSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		if e.Status == models.QueueStatusFailed {
			end, _ := excelize.CoordinatesToCellName(len(queueHeaders), row)
			_ = f.SetCellStyle(queueSheet, cell, end, failedStyle)
		}
	}

	_ = f.SetColWidth(queueSheet, "A", "A", 30)
	_ = f.SetColWidth(queueSheet, "B", "K", 16)
	_ = f.SetColWidth(queueSheet, "L", "L", 40)
	_ = f.SetColWidth(queueSheet, "M", "M", 18)
	return nil
}

func writeSummary(f *excelize.File, entries []models.QueueEntry, now time.Time) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	counts := make(map[models.QueueStatus]int, 4)
	for _, e := range entries {
		counts[e.Status]++
	}

	_ = f.SetCellValue(summarySheet, "A1", "Generated")
	_ = f.SetCellValue(summarySheet, "B1", now.Format(timeLayout))
	row := 2
	for _, s := range []models.QueueStatus{
		models.QueueStatusPending, models.QueueStatusSyncing, models.QueueStatusSynced, models.QueueStatusFailed,
	} {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), string(s))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), counts[s])
		row++
	}
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "total")
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), len(entries))
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
