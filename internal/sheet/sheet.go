// Package sheet reads and writes the spreadsheets the annotation jobs work on.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/DeafMist/news-annotator/internal/models"
	"github.com/xuri/excelize/v2"
)

// ErrMissingColumn is returned by Load when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

// Sheet is one named worksheet to write: a header row followed by data rows.
type Sheet struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Load reads the first worksheet of an xlsx file. The first row is the header; every
// cell is read as a string. Fully blank rows are skipped.
func Load(path string, required ...string) (models.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return models.Table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return models.Table{}, fmt.Errorf("%s has no worksheets", path)
	}

	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return models.Table{}, fmt.Errorf("read rows of %s: %w", sheets[0], err)
	}

	var table models.Table
	if len(raw) > 0 {
		table.Columns = make([]string, len(raw[0]))
		for i, h := range raw[0] {
			table.Columns[i] = strings.TrimSpace(h)
		}
	}

	for _, c := range required {
		if !table.Has(c) {
			return models.Table{}, fmt.Errorf("%s: %q: %w", path, c, ErrMissingColumn)
		}
	}

	for _, cells := range raw[min(1, len(raw)):] {
		if blank(cells) {
			continue
		}
		values := make(map[string]string, len(table.Columns))
		for i, c := range table.Columns {
			if i < len(cells) {
				values[c] = cells[i]
			} else {
				values[c] = ""
			}
		}
		table.Rows = append(table.Rows, models.Row{Index: len(table.Rows), Values: values})
	}

	return table, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Write saves sheets into a new xlsx workbook at path, in order.
func Write(path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("write %s: no sheets", path)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return fmt.Errorf("rename sheet %s: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("create sheet %s: %w", s.Name, err)
		}
		if err := stream(f, s); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func stream(f *excelize.File, s Sheet) error {
	sw, err := f.NewStreamWriter(s.Name)
	if err != nil {
		return fmt.Errorf("stream sheet %s: %w", s.Name, err)
	}

	header := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header of %s: %w", s.Name, err)
	}

	for i, row := range s.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name for row %d: %w", i, err)
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i, s.Name, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet %s: %w", s.Name, err)
	}
	return nil
}

// WriteCSV saves a header and rows as UTF-8 CSV without a byte order mark.
func WriteCSV(path string, columns []string, rows [][]any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		f.Close()
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(columns))
	for i, row := range rows {
		for j := range record {
			record[j] = ""
			if j < len(row) && row[j] != nil {
				record[j] = fmt.Sprint(row[j])
			}
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}
