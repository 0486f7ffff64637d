package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToInfo(t *testing.T) {
	log, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.False(t, log.Desugar().Core().Enabled(-1)) // debug disabled
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	require.Error(t, err)
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tft.log")
	log, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	log.Infow("hello", "k", "v")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
