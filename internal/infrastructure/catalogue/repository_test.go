package catalogue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRepository_NotFound(t *testing.T) {
	repo := NewFileRepository(filepath.Join(t.TempDir(), FileName))

	_, err := repo.Load()

	assert.ErrorIs(t, err, domain.ErrCatalogueNotFound)
}

func TestFileRepository_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wholefoods", FileName)
	repo := NewFileRepository(path)
	price := 5.29

	require.NoError(t, repo.Save(&domain.CatalogueDump{
		ScrapedAt: "2024-05-01T10:00:00Z",
		Products: []domain.CatalogueEntry{
			{Name: "Cheerios", Brand: "General Mills", Slug: "cheerios-12-oz", Price: &price},
			{Name: "Bananas"},
		},
	}))

	dump, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, dump.TotalProducts)
	require.Len(t, dump.Products, 2)
	assert.Equal(t, 5.29, *dump.Products[0].Price)
	assert.Nil(t, dump.Products[1].Price)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"regular_price": 5.29`)
	assert.Contains(t, string(raw), `"total_products": 2`)
}

func TestFileRepository_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileRepository(path).Load()

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCatalogueNotFound)
}
