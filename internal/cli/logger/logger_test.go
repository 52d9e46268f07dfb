package logger

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	path, closeLog := Setup(dir, "scrape")
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "scrape-"))

	log.Printf("[SCRAPE] hello from test")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[SCRAPE] hello from test")
}

func TestSetup_UnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	path, closeLog := Setup(filepath.Join(file, "logs"), "crawl")
	defer closeLog()
	assert.Empty(t, path)
}
