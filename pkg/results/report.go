package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/odvcencio/miser/pkg/errors"
)

var summaryHeader = []string{
	"mode", "tasks", "successes", "success_rate",
	"total_tokens", "avg_tokens", "avg_attempted",
}

// Markdown renders per-mode summaries as a markdown table.
func Markdown(summaries []Summary) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(summaryHeader, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(summaryHeader)) + "\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "| %s | %d | %d | %.1f%% | %d | %.0f | %.2f |\n",
			s.Mode, s.Tasks, s.Successes, s.SuccessRate*100,
			s.TotalTokens, s.AvgTokens, s.AvgAttempted)
	}
	return b.String()
}

// WriteCSV writes per-mode summaries as CSV.
func WriteCSV(path string, summaries []Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "creating csv report")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(summaryHeader); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "writing csv header")
	}
	for _, s := range summaries {
		record := []string{
			s.Mode,
			strconv.Itoa(s.Tasks),
			strconv.Itoa(s.Successes),
			fmt.Sprintf("%.4f", s.SuccessRate),
			strconv.Itoa(s.TotalTokens),
			fmt.Sprintf("%.1f", s.AvgTokens),
			fmt.Sprintf("%.2f", s.AvgAttempted),
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageWrite, "writing csv row")
		}
	}

	w.Flush()
	return w.Error()
}

// WriteXLSX writes per-mode summaries as a spreadsheet.
func WriteXLSX(path string, summaries []Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "naming sheet")
	}

	for col, name := range summaryHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageWrite, "computing cell name")
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageWrite, "writing header cell")
		}
	}

	for row, s := range summaries {
		values := []any{
			s.Mode, s.Tasks, s.Successes, s.SuccessRate,
			s.TotalTokens, s.AvgTokens, s.AvgAttempted,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeStorageWrite, "computing cell name")
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return errors.Wrap(err, errors.ErrCodeStorageWrite, "writing cell")
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "saving spreadsheet")
	}
	return nil
}
