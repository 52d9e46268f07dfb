package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/catalogue"
	"github.com/shelfscan/backend/internal/infrastructure/checkpoint"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// run executes the command line against a temp data dir and returns stdout
func run(t *testing.T, dataDir, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{v: viper.New(), stdin: strings.NewReader(stdin), stdout: &out, closeLog: func() {}}
	root := newRootCommand(a)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--data-dir", dataDir, "--no-log-file"))
	err := root.Execute()
	return out.String(), err
}

func writeReference(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func seedCatalogue(t *testing.T, dataDir, name string) {
	t.Helper()
	p := func(v float64) *float64 { return &v }
	dump := &domain.CatalogueDump{
		ScrapedAt: "2026-03-01T10:00:00Z",
		Products: []domain.CatalogueEntry{
			{Name: "Cheerios", Brand: "General Mills", SizeRaw: "12 OZ", Price: p(5.29), UPC: "1600027528"},
			{Name: "Corn Flakes", Brand: "Kellogg's", SizeRaw: "12 OZ", Price: p(3.99)},
		},
	}
	repo := catalogue.NewFileRepository(filepath.Join(dataDir, name, catalogue.FileName))
	require.NoError(t, repo.Save(dump))
}

func TestMatchCommand(t *testing.T) {
	dataDir := t.TempDir()
	seedCatalogue(t, dataDir, "wholefoods")
	input := writeReference(t, [][]interface{}{
		{"UPC", "Item Description", "Brand", "Size", "Price"},
		{"016000275287", "Cheerios", "General Mills", "12 oz", 3.99},
		{"", "Mystery Soup", "Nobody", "10 oz", 2.00},
	})

	out, err := run(t, dataDir, "", "match", "--retailer", "wholefoods", "--input", input)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Matched:  1/2")
	assert.Contains(t, out, "Flagged:  1")

	report := filepath.Join(dataDir, "wholefoods", comparisonFileName)
	f, err := excelize.OpenFile(report)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Comparison")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Cheerios", rows[1][6])
	assert.True(t, strings.HasPrefix(rows[2][6], domain.NotMatched), rows[2][6])
}

func TestMatchCommand_ByUPC(t *testing.T) {
	dataDir := t.TempDir()
	seedCatalogue(t, dataDir, "safeway")
	input := writeReference(t, [][]interface{}{
		{"UPC", "Item Description", "Price"},
		{"016000275287", "Cheerios", 3.99},
	})
	output := filepath.Join(t.TempDir(), "out", "safeway.xlsx")

	out, err := run(t, dataDir, "", "match", "-r", "safeway", "-i", input, "--by-upc", "-o", output)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Matched:  1/1")
	assert.FileExists(t, output)
}

func TestMatchCommand_BatchRetailer(t *testing.T) {
	dataDir := t.TempDir()
	seedCheckpoint(t, dataDir)
	input := writeReference(t, [][]interface{}{
		{"UPC", "Item Description", "Price"},
		{"016000275287", "Cheerios", 3.00},
		{"038000000000", "Corn Flakes", 2.50},
		{"041196910759", "Soup", 1.25},
		{"", "Bananas", 0.59},
	})

	out, err := run(t, dataDir, "", "match", "--retailer", "giant", "--input", input)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Matched:  1/4")
	assert.Contains(t, out, "Flagged:  1")

	f, err := excelize.OpenFile(filepath.Join(dataDir, "giant", comparisonFileName))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Comparison")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Cheerios", rows[1][6])
	assert.Equal(t, "4.29", rows[1][9])
	assert.Equal(t, "yes", rows[1][14])
	assert.Equal(t, domain.NotMatched, rows[2][6])
}

func TestMatchCommand_Errors(t *testing.T) {
	input := writeReference(t, [][]interface{}{
		{"Item Description", "Price"},
		{"Cheerios", 3.99},
	})

	t.Run("catalogue not crawled", func(t *testing.T) {
		_, err := run(t, t.TempDir(), "", "match", "--retailer", "safeway", "--input", input)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrCatalogueNotFound)
		assert.Contains(t, err.Error(), "shelfscan crawl --retailer safeway")
	})

	t.Run("batch retailer not scraped", func(t *testing.T) {
		_, err := run(t, t.TempDir(), "", "match", "--retailer", "giant", "--input", input)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "shelfscan scrape --retailer giant")
	})

	t.Run("unknown retailer", func(t *testing.T) {
		_, err := run(t, t.TempDir(), "", "match", "--retailer", "kroger", "--input", input)
		assert.ErrorIs(t, err, domain.ErrUnknownRetailer)
	})

	t.Run("missing columns for upc join", func(t *testing.T) {
		dataDir := t.TempDir()
		seedCatalogue(t, dataDir, "safeway")
		_, err := run(t, dataDir, "", "match", "--retailer", "safeway", "--input", input, "--by-upc")
		assert.ErrorIs(t, err, domain.ErrMissingColumns)
	})
}

func TestScrapeCommand_RejectsCatalogueRetailer(t *testing.T) {
	input := writeReference(t, [][]interface{}{{"UPC"}, {"016000275287"}})

	_, err := run(t, t.TempDir(), "", "scrape", "--retailer", "safeway", "--input", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a batch retailer")
}

func TestScrapeCommand_RequiresUPCs(t *testing.T) {
	input := writeReference(t, [][]interface{}{{"UPC", "Item Description"}, {"", "Cheerios"}})

	_, err := run(t, t.TempDir(), "", "scrape", "--retailer", "giant", "--input", input)
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func seedCheckpoint(t *testing.T, dataDir string) {
	t.Helper()
	record := domain.NewCheckpointRecord()
	record.TotalCount = 3
	record.StartSession("s1", time.Now())
	price := 4.29
	record.MarkCompleted(0, &domain.ScrapedResult{UPC: "016000275287", Name: "Cheerios", Price: &price}, time.Now())
	record.MarkCompleted(1, nil, time.Now())

	store := checkpoint.NewFileStore(filepath.Join(dataDir, "giant", checkpoint.FileName))
	require.NoError(t, store.Save(record))
}

func TestStatusCommand(t *testing.T) {
	dataDir := t.TempDir()
	seedCheckpoint(t, dataDir)
	seedCatalogue(t, dataDir, "wholefoods")

	out, err := run(t, dataDir, "", "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "giant (batch)")
	assert.Contains(t, out, "completed 2/3")
	assert.Contains(t, out, "harristeeter (batch)")
	assert.Contains(t, out, "no scrape started")
	assert.Contains(t, out, "2 products in catalogue")

	_, err = run(t, dataDir, "", "status", "--retailer", "kroger")
	assert.ErrorIs(t, err, domain.ErrUnknownRetailer)
}

func TestResetCommand(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "giant", checkpoint.FileName)

	t.Run("declined confirmation keeps checkpoint", func(t *testing.T) {
		seedCheckpoint(t, dataDir)
		out, err := run(t, dataDir, "no\n", "reset", "--retailer", "giant")
		require.NoError(t, err)
		assert.Contains(t, out, "Aborted")
		assert.FileExists(t, path)
	})

	t.Run("confirmed reset deletes checkpoint", func(t *testing.T) {
		seedCheckpoint(t, dataDir)
		_, err := run(t, dataDir, "yes\n", "reset", "--retailer", "giant")
		require.NoError(t, err)
		assert.NoFileExists(t, path)
	})

	t.Run("--yes skips confirmation", func(t *testing.T) {
		seedCheckpoint(t, dataDir)
		_, err := run(t, dataDir, "", "reset", "--retailer", "giant", "--yes")
		require.NoError(t, err)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestExportCommand(t *testing.T) {
	dataDir := t.TempDir()
	seedCheckpoint(t, dataDir)
	input := writeReference(t, [][]interface{}{
		{"UPC", "Item Description"},
		{"016000275287", "Cheerios"},
		{"038000000000", "Corn Flakes"},
		{"041196910759", "Soup"},
	})

	out, err := run(t, dataDir, "", "export", "--retailer", "giant", "--input", input)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 found, 1 not found, 1 pending")
	assert.FileExists(t, filepath.Join(dataDir, "giant", resultsFileName))
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-03-01")
	defer SetVersionInfo("", "", "")

	out, err := run(t, t.TempDir(), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "shelfscan 1.2.3")
	assert.Contains(t, out, "abc123")
}
