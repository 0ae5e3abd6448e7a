package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"korabot/internal/config"
)

const (
	launchdLabel = "com.korabot.serve"
	systemdUnit  = "korabot.service"
)

// serviceFile is a rendered launchd plist or systemd unit.
type serviceFile struct {
	Path    string
	Content string
	Hints   []string
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install korabot as a user service (launchd/systemd)",
		Long:  `Writes a service file that runs "korabot serve" in the background on login.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}

			svc, err := renderService(runtime.GOOS, home, execPath, resolveConfigPath())
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Join(config.DefaultConfigDir(), "logs"), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(svc.Path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(svc.Path, []byte(svc.Content), 0o644); err != nil {
				return err
			}

			fmt.Printf("Service installed: %s\n", svc.Path)
			for _, h := range svc.Hints {
				fmt.Println(h)
			}
			return nil
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the korabot user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			p, err := servicePath(runtime.GOOS, home)
			if err != nil {
				return err
			}
			if err := os.Remove(p); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Service removed: %s\n", p)
			return nil
		},
	}
}

func servicePath(goos, home string) (string, error) {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", systemdUnit), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

func renderService(goos, home, execPath, cfgPath string) (serviceFile, error) {
	p, err := servicePath(goos, home)
	if err != nil {
		return serviceFile{}, err
	}
	logDir := filepath.Join(home, ".korabot", "logs")
	r := strings.NewReplacer(
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
		"{{LABEL}}", launchdLabel,
		"{{LOG}}", filepath.Join(logDir, "korabot.log"),
		"{{ERR_LOG}}", filepath.Join(logDir, "korabot-error.log"),
		"{{WORKDIR}}", filepath.Join(home, ".korabot"),
	)

	if goos == "darwin" {
		return serviceFile{
			Path:    p,
			Content: r.Replace(launchdTemplate),
			Hints: []string{
				"To start: launchctl load " + p,
				"To stop:  launchctl unload " + p,
			},
		}, nil
	}
	return serviceFile{
		Path:    p,
		Content: r.Replace(systemdTemplate),
		Hints: []string{
			"To start:  systemctl --user start korabot",
			"To enable: systemctl --user enable korabot",
			"To stop:   systemctl --user stop korabot",
		},
	}, nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{WORKDIR}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

// The working directory holds an optional .env picked up at startup.
const systemdTemplate = `[Unit]
Description=korabot chat bridge
After=network-online.target

[Service]
Type=simple
WorkingDirectory={{WORKDIR}}
ExecStart={{EXEC}} serve --config {{CONFIG}}
Restart=on-failure
RestartSec=5
StandardOutput=append:{{LOG}}
StandardError=append:{{ERR_LOG}}

[Install]
WantedBy=default.target`
