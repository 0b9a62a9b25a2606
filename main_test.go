package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tipjar/pkg/config"
	"tipjar/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintReport(t *testing.T) {
	tests := []struct {
		name     string
		report   models.CheckReport
		contains []string
		absent   []string
	}{
		{
			name: "invalid structure",
			report: models.CheckReport{
				ConfigPath:      "/tmp/x.json",
				StructureErrors: []string{"invalid configuration: contract_address is required"},
			},
			contains: []string{"Testing configuration at: /tmp/x.json", "Error: invalid configuration: contract_address is required"},
			absent:   []string{"RPC:"},
		},
		{
			name: "rpc failure",
			report: models.CheckReport{
				ValidStructure: true,
				RPCURL:         "http://127.0.0.1:1",
				RPCStatus:      "error",
				RPCError:       "connection refused",
			},
			contains: []string{"RPC: http://127.0.0.1:1 ... Failed: connection refused"},
			absent:   []string{"Tips:"},
		},
		{
			name: "mismatch",
			report: models.CheckReport{
				ValidStructure:  true,
				RPCStatus:       "ok",
				ObservedChainID: 1,
				ConfigChainID:   31337,
				ChainIDMismatch: true,
				HasCode:         true,
				TipCount:        3,
			},
			contains: []string{"OK (ChainID: 1", "MISMATCH! Expected 31337", "Tips: 3", "not supported"},
		},
		{
			name: "healthy",
			report: models.CheckReport{
				ValidStructure:  true,
				RPCStatus:       "ok",
				ObservedChainID: 31337,
				ConfigChainID:   31337,
				HasCode:         true,
				BulkSupported:   true,
				Owner:           "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
			},
			contains: []string{"Verified", "getAllTips: supported", "Owner: 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"},
			absent:   []string{"Error:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printReport(&buf, tt.report)
			out := buf.String()
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "verbose"
	_, _, err := newLogger(cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, models.ErrConfig)

	var buf bytes.Buffer
	cfg.LogLevel = "warn"
	logger, closeLog, err := newLogger(cfg, &buf)
	require.NoError(t, err)
	defer closeLog()
	logger.Info("hidden")
	logger.Warn("shown", "account", "0x1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"account":"0x1"`)
}

func TestNewLoggerFile(t *testing.T) {
	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "tipjar.log")

	var fallback bytes.Buffer
	logger, closeLog, err := newLogger(cfg, &fallback)
	require.NoError(t, err)
	logger.Info("to file")
	closeLog()

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Empty(t, fallback.String())
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	err := validate(cfg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "contract_address"))

	cfg.ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	assert.NoError(t, validate(cfg))
}

func TestViewOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Symbol = "SEP"
	cfg.TokenDecimals = 6
	opts := viewOptions(cfg)
	assert.Equal(t, "SEP", opts.Symbol)
	assert.Equal(t, 6, opts.Decimals)
	assert.NotNil(t, opts.Location)
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"run", "serve", "check"}, names)
	assert.NotNil(t, app.Action)
}
