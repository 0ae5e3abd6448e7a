package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"korabot/internal/config"
)

func init() {
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	src := t.TempDir()
	cfg := config.Defaults()
	cfg.History.DBPath = filepath.Join(src, "history.db")
	cfg.Channels.WhatsMeow.DeviceDBPath = filepath.Join(src, "wa", "device.db")
	cfgPath := filepath.Join(src, "config.yaml")

	require.NoError(t, os.WriteFile(cfgPath, []byte("general: {}\n"), 0o600))
	require.NoError(t, os.WriteFile(cfg.History.DBPath, []byte("history"), 0o600))
	require.NoError(t, os.WriteFile(cfg.History.DBPath+"-wal", []byte("wal"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Channels.WhatsMeow.DeviceDBPath), 0o700))
	require.NoError(t, os.WriteFile(cfg.Channels.WhatsMeow.DeviceDBPath, []byte("device"), 0o600))

	files := existingFiles(backupTargets(cfg, cfgPath))
	assert.Len(t, files, 4)

	archive := filepath.Join(t.TempDir(), "b.tar.gz")
	require.NoError(t, createTarGz(archive, files))

	dst := t.TempDir()
	restoreCfg := config.Defaults()
	restoreCfg.History.DBPath = filepath.Join(dst, "h", "history.db")
	restoreCfg.Channels.WhatsMeow.DeviceDBPath = filepath.Join(dst, "device.db")
	restoreCfgPath := filepath.Join(dst, "config.yaml")

	restored, err := extractTarGz(archive, backupTargets(restoreCfg, restoreCfgPath))
	require.NoError(t, err)
	assert.Len(t, restored, 4)

	got, err := os.ReadFile(restoreCfg.History.DBPath)
	require.NoError(t, err)
	assert.Equal(t, "history", string(got))
	got, err = os.ReadFile(restoreCfg.Channels.WhatsMeow.DeviceDBPath)
	require.NoError(t, err)
	assert.Equal(t, "device", string(got))
}

func TestBackupTargetsSkipsPostgresHistory(t *testing.T) {
	cfg := config.Defaults()
	cfg.History.Driver = "postgres"
	targets := backupTargets(cfg, "/etc/korabot.yaml")
	for name := range targets {
		assert.NotContains(t, name, "history/")
	}
	assert.Equal(t, "/etc/korabot.yaml", targets["config.yaml"])
}
