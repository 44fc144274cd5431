package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"serve", "ingest", "ingest-message", "retrieve", "stats", "config", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	root := NewRootCmd()
	flagData = t.TempDir()
	flagDim = 64
	flagAddr = "127.0.0.1:9999"
	flagDebug = true
	t.Cleanup(func() {
		flagConfig, flagData, flagAddr = "", "", ""
		flagDim = 0
		flagDebug = false
	})

	cfg, err := loadConfig(root)
	require.NoError(t, err)

	assert.Equal(t, flagData, cfg.Store.DataDir)
	assert.Equal(t, 64, cfg.Store.Dimension)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestReadPayload_InlineInput(t *testing.T) {
	data, err := readPayload(`{"query":[1,0]}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":[1,0]}`, string(data))
}
