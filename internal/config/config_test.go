package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/contiki-ng/gocoap/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, 4, cfg.MaxRetransmit)
	require.Equal(t, 2*time.Second, cfg.AckTimeout)
	require.Equal(t, 64, cfg.PreferredBlockSize)
}

func TestLoadOverridesSubset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coap.ini")
	contents := "[coap]\nmax_retransmit = 7\npreferred_block_size = 128\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.MaxRetransmit)
	require.Equal(t, 128, cfg.PreferredBlockSize)
	// Untouched keys keep the default.
	require.Equal(t, 32, cfg.MaxObservers)
}
