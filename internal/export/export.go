// Package export writes quote tables to timestamped CSV or XLSX files.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"suptrading/internal/database"
)

var header = []string{"id", "date", "share", "symbol", "open", "high", "low", "close", "adj_close", "volume"}

type Writer struct {
	dir    string
	format string // "csv" or "xlsx"
	log    *logrus.Logger
	clock  func() time.Time
}

func NewWriter(dir, format string, log *logrus.Logger) *Writer {
	return &Writer{dir: dir, format: format, log: log, clock: time.Now}
}

// Write saves the rows under <dir>/<prefix>_<timestamp>.<ext>, creating the
// directory when absent, and returns the path of the file it produced.
func (w *Writer) Write(rows []database.StoredRow, prefix string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	stamp := w.clock().Format("2006-01-02_15-04-05")
	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.%s", prefix, stamp, w.format))

	var err error
	switch w.format {
	case "csv":
		err = writeCSV(path, rows)
	case "xlsx":
		err = writeXLSX(path, rows)
	default:
		return "", fmt.Errorf("unsupported export format %q", w.format)
	}
	if err != nil {
		return "", err
	}
	w.log.Infof("exported %d rows to %s", len(rows), path)
	return path, nil
}

func record(s database.StoredRow) []string {
	return []string{
		strconv.FormatInt(s.ID, 10),
		s.Date.Format(time.RFC3339),
		s.Share,
		s.Symbol,
		s.Open.String(),
		s.High.String(),
		s.Low.String(),
		s.Close.String(),
		s.AdjClose.String(),
		strconv.FormatInt(s.Volume, 10),
	}
}

func writeCSV(path string, rows []database.StoredRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range rows {
		if err := cw.Write(record(s)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(path string, rows []database.StoredRow) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for col, h := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for i, s := range rows {
		rec := record(s)
		for col, v := range rec {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save export file: %w", err)
	}
	return nil
}
