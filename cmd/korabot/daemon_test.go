package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderService_Systemd(t *testing.T) {
	svc, err := renderService("linux", "/home/ada", "/usr/local/bin/korabot", "/home/ada/.korabot/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/home/ada/.config/systemd/user/korabot.service", svc.Path)
	assert.Contains(t, svc.Content, "ExecStart=/usr/local/bin/korabot serve --config /home/ada/.korabot/config.yaml")
	assert.Contains(t, svc.Content, "StandardOutput=append:/home/ada/.korabot/logs/korabot.log")
	assert.NotContains(t, svc.Content, "{{")
}

func TestRenderService_Launchd(t *testing.T) {
	svc, err := renderService("darwin", "/Users/ada", "/opt/korabot", "/Users/ada/.korabot/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/Users/ada/Library/LaunchAgents/com.korabot.serve.plist", svc.Path)
	assert.Contains(t, svc.Content, "<string>com.korabot.serve</string>")
	assert.Contains(t, svc.Content, "<string>serve</string>")
	assert.NotContains(t, svc.Content, "{{")
}

func TestRenderService_Unsupported(t *testing.T) {
	_, err := renderService("windows", `C:\Users\ada`, "korabot.exe", "config.yaml")
	assert.Error(t, err)
}
