package excel

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ReportHeaders are the columns of the comparison report
var ReportHeaders = []string{
	"Row", "UPC", "Description", "Brand", "Size", "Price",
	"MatchName", "MatchBrand", "MatchSize", "MatchPrice", "Score", "Status",
	"DeltaAbs", "DeltaPct", "Flagged", "Reasons",
}

// Report column positions (1-based) used by formatting rules
const (
	colMatchName = 7
	colStatus    = 12
	colScore     = 11
	colDeltaAbs  = 13
	colDeltaPct  = 14
	colFlagged   = 15
)

const (
	matchFillColor   = "C6EFCE"
	flaggedFillColor = "FFC7CE"
	defaultSheet     = "Comparison"
)

// ReportOptions controls report formatting
type ReportOptions struct {
	HighlightScore float64 // rows scoring above this get a green fill
	SheetName      string
}

// WriteReport writes comparison rows to an xlsx report with highlight, autofilter and border formatting
func WriteReport(path string, rows []domain.ComparisonRow, opts ReportOptions) error {
	sheet := opts.SheetName
	if sheet == "" {
		sheet = defaultSheet
	}
	if opts.HighlightScore <= 0 {
		opts.HighlightScore = 45
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("error naming sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}
	for i, h := range ReportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for i, row := range rows {
		values := reportValues(row)
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	lastRow := len(rows) + 1
	if err := applyReportFormatting(f, sheet, lastRow, opts.HighlightScore); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating report directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("error saving Excel file: %w", err)
	}
	log.Printf("[EXCEL] Wrote comparison report with %d rows to %s", len(rows), path)
	return nil
}

// reportValues renders one comparison row in ReportHeaders order
func reportValues(row domain.ComparisonRow) []interface{} {
	ref := row.Reference
	values := []interface{}{
		ref.Row, ref.UPC, ref.Description, ref.Brand, ref.Size, optional(ref.Price),
		domain.NotMatched, domain.NotMatched, domain.NotMatched, domain.NotMatched,
		row.Match.Score, row.Status, "", "", "", strings.Join(row.Match.RejectReasons, "; "),
	}
	if row.Status == domain.StatusMatched {
		values[6] = row.MatchedName
		values[7] = row.MatchedBrand
		values[8] = row.MatchedSize
		values[9] = optional(row.MatchedPrice)
	} else if row.CandidateName != "" {
		values[6] = domain.NotMatched + " (closest: " + row.CandidateName + ")"
	}
	if row.DeltaAbs != nil {
		values[12] = *row.DeltaAbs
	}
	if row.DeltaPct != nil {
		values[13] = *row.DeltaPct
	}
	if row.Flagged {
		values[14] = "yes"
	}
	return values
}

func optional(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

// applyReportFormatting adds the score highlight, flagged delta fill, match name autofilter
// and a medium border around the match columns
func applyReportFormatting(f *excelize.File, sheet string, lastRow int, highlight float64) error {
	lastCol, _ := excelize.ColumnNumberToName(len(ReportHeaders))
	scoreCol, _ := excelize.ColumnNumberToName(colScore)
	flaggedCol, _ := excelize.ColumnNumberToName(colFlagged)
	matchCol, _ := excelize.ColumnNumberToName(colMatchName)

	if lastRow >= 2 {
		green, err := f.NewConditionalStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{matchFillColor}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("error creating highlight style: %w", err)
		}
		rowRange := fmt.Sprintf("A2:%s%d", lastCol, lastRow)
		if err := f.SetConditionalFormat(sheet, rowRange, []excelize.ConditionalFormatOptions{
			{Type: "formula", Criteria: fmt.Sprintf("$%s2>%g", scoreCol, highlight), Format: &green},
		}); err != nil {
			return fmt.Errorf("error setting highlight rule: %w", err)
		}

		red, err := f.NewConditionalStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{flaggedFillColor}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("error creating flagged style: %w", err)
		}
		absCol, _ := excelize.ColumnNumberToName(colDeltaAbs)
		pctCol, _ := excelize.ColumnNumberToName(colDeltaPct)
		deltaRange := fmt.Sprintf("%s2:%s%d", absCol, pctCol, lastRow)
		if err := f.SetConditionalFormat(sheet, deltaRange, []excelize.ConditionalFormatOptions{
			{Type: "formula", Criteria: fmt.Sprintf(`$%s2="yes"`, flaggedCol), Format: &red},
		}); err != nil {
			return fmt.Errorf("error setting flagged rule: %w", err)
		}
	}

	if err := f.AutoFilter(sheet, fmt.Sprintf("%s1:%s%d", matchCol, matchCol, lastRow), nil); err != nil {
		return fmt.Errorf("error setting autofilter: %w", err)
	}

	return outlineBlock(f, sheet, colMatchName, colStatus, 1, lastRow)
}

// outlineBlock draws a medium border around the rectangle of cells. Each cell keeps only the
// edges it sits on, so styles are cached per edge combination.
func outlineBlock(f *excelize.File, sheet string, firstCol, lastCol, firstRow, lastRow int) error {
	styles := make(map[[4]bool]int)
	for row := firstRow; row <= lastRow; row++ {
		for col := firstCol; col <= lastCol; col++ {
			edges := [4]bool{col == firstCol, row == firstRow, col == lastCol, row == lastRow}
			id, ok := styles[edges]
			if !ok {
				var borders []excelize.Border
				for i, side := range []string{"left", "top", "right", "bottom"} {
					if edges[i] {
						borders = append(borders, excelize.Border{Type: side, Color: "000000", Style: 2})
					}
				}
				var err error
				id, err = f.NewStyle(&excelize.Style{Border: borders, Font: &excelize.Font{Bold: row == 1}})
				if err != nil {
					return fmt.Errorf("error creating border style: %w", err)
				}
				styles[edges] = id
			}
			cell, _ := excelize.CoordinatesToCellName(col, row)
			if err := f.SetCellStyle(sheet, cell, cell, id); err != nil {
				return fmt.Errorf("error styling %s: %w", cell, err)
			}
		}
	}
	return nil
}
