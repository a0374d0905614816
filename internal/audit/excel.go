package audit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"roomdesk/internal/models"

	"github.com/xuri/excelize/v2"
)

const journalSheet = "Journal"

var journalColumns = []string{
	"Reservation ID", "User ID", "User Name", "Room", "Date",
	"Start", "End", "Subject", "Status", "Action",
	"Actor ID", "Actor Name", "Comment", "Recorded At",
}

// ExcelJournal appends reservation history rows to a workbook on disk.
// One instance owns the file; callers serialize through the mutex.
type ExcelJournal struct {
	path string

	mu      sync.Mutex
	file    *excelize.File
	nextRow int
}

func NewExcelJournal(path string) (*ExcelJournal, error) {
	j := &ExcelJournal{path: path}

	if _, err := os.Stat(path); err == nil {
		file, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open journal %s: %w", path, err)
		}
		rows, err := file.GetRows(journalSheet)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("read journal sheet: %w", err)
		}
		j.file = file
		j.nextRow = len(rows) + 1
		return j, nil
	}

	file := excelize.NewFile()
	file.SetSheetName("Sheet1", journalSheet)
	j.file = file
	j.nextRow = 1
	if err := j.writeHeader(); err != nil {
		file.Close()
		return nil, err
	}
	return j, nil
}

func (j *ExcelJournal) writeHeader() error {
	for i, col := range journalColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, j.nextRow)
		if err != nil {
			return err
		}
		if err := j.file.SetCellValue(journalSheet, cell, col); err != nil {
			return err
		}
	}

	style, err := j.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, j.nextRow)
		endCell, _ := excelize.CoordinatesToCellName(len(journalColumns), j.nextRow)
		_ = j.file.SetCellStyle(journalSheet, startCell, endCell, style)
	}

	j.nextRow++
	return nil
}

// AppendReservation records one reservation action and flushes the workbook.
func (j *ExcelJournal) AppendReservation(ctx context.Context, r *models.Reservation, action string, actor models.Actor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	row := []interface{}{
		r.ID,
		r.UserID,
		r.UserName,
		r.RoomName,
		r.Interval.Date.Format(models.DateLayout),
		r.Interval.StartLabel(),
		r.Interval.EndLabel(),
		r.Subject,
		r.Status,
		action,
		actor.ID,
		actor.Name,
		r.ManagerComment,
		time.Now().Format(time.RFC3339),
	}

	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, j.nextRow)
		if err != nil {
			return err
		}
		if err := j.file.SetCellValue(journalSheet, cell, val); err != nil {
			return fmt.Errorf("write journal cell: %w", err)
		}
	}
	j.nextRow++

	if err := j.file.SaveAs(j.path); err != nil {
		return fmt.Errorf("save journal %s: %w", j.path, err)
	}
	return nil
}

// Close releases workbook resources.
func (j *ExcelJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
