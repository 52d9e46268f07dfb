package excel

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ResultColumns are appended to the reference sheet by ExportResults
var ResultColumns = []string{
	"scraped_upc", "scraped_name", "scraped_price", "scraped_size",
	"scraped_timestamp", "scraping_status", "upc_match",
}

// Scraping status values
const (
	ScrapeSuccess = "success"
	ScrapeFailed  = "failed"
	ScrapePending = "pending"
)

// ExportSummary counts exported rows by status
type ExportSummary struct {
	Success int
	Failed  int
	Pending int
}

// ExportResults copies the reference workbook to outputPath with scrape result columns appended.
// refs[i] must correspond to work item index i of the checkpoint.
func (r *Reader) ExportResults(inputPath, outputPath string, refs []domain.ReferenceRow, record *domain.CheckpointRecord) (*ExportSummary, error) {
	f, err := excelize.OpenFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("error opening Excel file: %w", err)
	}
	defer f.Close()

	sheet, err := r.sheetName(f)
	if err != nil {
		return nil, err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("error getting rows: %w", err)
	}
	startCol := 1
	if len(rows) > 0 {
		startCol = len(rows[0]) + 1
	}
	for i, h := range ResultColumns {
		cell, _ := excelize.CoordinatesToCellName(startCol+i, 1)
		f.SetCellValue(sheet, cell, h)
	}

	byIndex := make(map[int]domain.ResultEntry, len(record.Results))
	for _, res := range record.Results {
		byIndex[res.Index] = res
	}

	summary := &ExportSummary{}
	for i, ref := range refs {
		values := make([]interface{}, len(ResultColumns))
		res, done := byIndex[i]
		switch {
		case done && res.Data != nil:
			d := res.Data
			values[0] = d.UPC
			values[1] = d.DisplayName()
			if d.Price != nil {
				values[2] = *d.Price
			}
			values[3] = d.Size
			values[4] = res.Timestamp.Format(time.RFC3339)
			values[5] = ScrapeSuccess
			values[6] = yesNo(domain.SameUPC(ref.UPC, d.UPC))
			summary.Success++
		case done:
			values[4] = res.Timestamp.Format(time.RFC3339)
			values[5] = ScrapeFailed
			summary.Failed++
		default:
			values[5] = ScrapePending
			summary.Pending++
		}

		for j, v := range values {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(startCol+j, ref.Row)
			f.SetCellValue(sheet, cell, v)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}
	if err := f.SaveAs(outputPath); err != nil {
		return nil, fmt.Errorf("error saving Excel file: %w", err)
	}
	log.Printf("[EXCEL] Exported %d rows to %s (%d success, %d failed, %d pending)",
		len(refs), outputPath, summary.Success, summary.Failed, summary.Pending)
	return summary, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
