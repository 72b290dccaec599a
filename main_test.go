package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldline/backtester/config"
	"github.com/foldline/backtester/data"
)

const barsCSV = "timestamp,close,volume\n" +
	"2024-01-01,100,1000\n" +
	"2024-01-02,101,1000\n"

func TestLoadFeedSingleFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(barsCSV), 0o644))

	feed, err := loadFeed(&config.Config{DataPath: path, Symbol: "aaa"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, feed.Symbols())
}

func TestLoadFeedDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAA.csv"), []byte(barsCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BBB.csv"), []byte(barsCSV), 0o644))

	feed, err := loadFeed(&config.Config{DataPath: dir, Symbols: []string{"aaa", "bbb"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, feed.Symbols())
}

func TestLoadFeedUnknownSymbol(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAA.csv"), []byte(barsCSV), 0o644))

	// a configured symbol with no series file fails before any csv parsing
	_, err := loadFeed(&config.Config{DataPath: dir, Symbols: []string{"aaa", "bbb"}})
	assert.ErrorIs(t, err, data.ErrUnknownSymbol)
}

func TestLoadFeedMissingPath(t *testing.T) {
	t.Parallel()
	_, err := loadFeed(&config.Config{DataPath: filepath.Join(t.TempDir(), "nope"), Symbol: "AAA"})
	assert.ErrorIs(t, err, data.ErrData)
}
