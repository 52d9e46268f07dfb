package excel

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Canonical column keys of the reference sheet
const (
	ColumnUPC         = "upc"
	ColumnDescription = "description"
	ColumnPrice       = "price"
	ColumnBrand       = "brand"
	ColumnSize        = "size"
)

// Required column sets per workflow
var (
	ScrapeColumns   = []string{ColumnUPC}
	MatchColumns    = []string{ColumnDescription, ColumnPrice}
	UPCMatchColumns = []string{ColumnUPC, ColumnDescription}
)

// headerAliases maps lowercased header text to a canonical column
var headerAliases = map[string]string{
	"upc":              ColumnUPC,
	"upc code":         ColumnUPC,
	"gtin":             ColumnUPC,
	"item desc.":       ColumnDescription,
	"item desc":        ColumnDescription,
	"item description": ColumnDescription,
	"description":      ColumnDescription,
	"product name":     ColumnDescription,
	"name":             ColumnDescription,
	"price":            ColumnPrice,
	"retail price":     ColumnPrice,
	"regular price":    ColumnPrice,
	"unit price":       ColumnPrice,
	"brand":            ColumnBrand,
	"brand name":       ColumnBrand,
	"size":             ColumnSize,
	"item size":        ColumnSize,
	"pack size":        ColumnSize,
}

// Reader loads reference price sheets from xlsx workbooks
type Reader struct {
	sheet string
}

// NewReader creates a reader for the named sheet; an empty name selects the first sheet
func NewReader(sheet string) *Reader {
	return &Reader{sheet: sheet}
}

// LoadReference reads every non-blank data row of the sheet. Missing required columns are a
// configuration error wrapping domain.ErrMissingColumns.
func (r *Reader) LoadReference(path string, required []string) ([]domain.ReferenceRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, domain.NewConfigurationError(fmt.Sprintf("cannot open reference sheet %s", path), err)
	}
	defer f.Close()

	sheet, err := r.sheetName(f)
	if err != nil {
		return nil, err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("error reading rows of %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, domain.NewConfigurationError("reference sheet is empty", domain.ErrMissingColumns)
	}

	header := rows[0]
	columns := make(map[string]int)
	for i, h := range header {
		if key, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, seen := columns[key]; !seen {
				columns[key] = i
			}
		}
	}

	var missing []string
	for _, col := range required {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, domain.NewConfigurationError(
			fmt.Sprintf("reference sheet %s is missing columns: %s", path, strings.Join(missing, ", ")),
			domain.ErrMissingColumns)
	}

	cell := func(row []string, key string) string {
		i, ok := columns[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	refs := make([]domain.ReferenceRow, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		ref := domain.ReferenceRow{
			Row:         n + 2,
			UPC:         cell(row, ColumnUPC),
			Description: cell(row, ColumnDescription),
			Brand:       cell(row, ColumnBrand),
			Size:        cell(row, ColumnSize),
			Price:       parsePrice(cell(row, ColumnPrice)),
		}
		for i, h := range header {
			if _, known := headerAliases[strings.ToLower(strings.TrimSpace(h))]; known || i >= len(row) || row[i] == "" {
				continue
			}
			if ref.Extra == nil {
				ref.Extra = make(map[string]string)
			}
			ref.Extra[h] = row[i]
		}
		refs = append(refs, ref)
	}

	log.Printf("[EXCEL] Loaded %d reference rows from %s (%s)", len(refs), path, sheet)
	return refs, nil
}

func (r *Reader) sheetName(f *excelize.File) (string, error) {
	sheets := f.GetSheetList()
	if r.sheet == "" {
		if len(sheets) == 0 {
			return "", domain.NewConfigurationError("workbook has no sheets", nil)
		}
		return sheets[0], nil
	}
	for _, s := range sheets {
		if s == r.sheet {
			return s, nil
		}
	}
	return "", domain.NewConfigurationError(fmt.Sprintf("sheet %q not found", r.sheet), nil)
}

// parsePrice reads "$4.99", "4.99" or "1,299.00"; anything else is unknown
func parsePrice(s string) *float64 {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
