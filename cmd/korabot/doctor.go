package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"korabot/internal/channel"
	"korabot/internal/config"
	"korabot/internal/memory"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your korabot installation",
		Long: `Verifies that korabot's configuration, providers, history database and
transports are set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("korabot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed, failed, warned := 0, 0, 0
			pass := func(check, detail string) { printPass(check, detail); passed++ }
			fail := func(check, detail string) { printFail(check, detail); failed++ }
			warn := func(check, detail string) { printWarn(check, detail); warned++ }

			if _, err := os.Stat(cfgPath); err != nil {
				warn("Config file", fmt.Sprintf("not found at %s; using defaults and environment", cfgPath))
			} else {
				pass("Config file", cfgPath)
			}

			cfg, err := config.Read(cfgPath)
			if err != nil {
				fail("Config parse", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("config unreadable")
			}
			if err := config.Validate(cfg); err != nil {
				fail("Config validation", err.Error())
			} else {
				pass("Config validation", "valid")
			}
			if err := config.RequireTransport(cfg); err != nil {
				fail("Transport", err.Error())
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			store, err := memory.Open(ctx, cfg.History, logger)
			if err != nil {
				fail("History store", err.Error())
			} else {
				if err := store.Ping(ctx); err != nil {
					fail("History store", err.Error())
				} else {
					pass("History store", cfg.History.Driver)
				}
				store.Close()
			}

			for role, mc := range map[string]config.ModelConfig{"text": cfg.AI.Text, "image": cfg.AI.Image} {
				switch {
				case mc.Provider == "ollama":
					pass("Model: "+role, mc.Provider+"/"+mc.Model)
				case mc.APIKey == "":
					fail("Model: "+role, mc.Provider+" needs an API key")
				default:
					pass("Model: "+role, mc.Provider+"/"+mc.Model)
				}
			}

			if cfg.ImageHost.APIKey == "" {
				warn("Image host", "no API key; image analyses will not include a link")
			} else {
				pass("Image host", cfg.ImageHost.URL)
			}

			if cfg.Channels.Telegram.Enabled {
				tg := channel.NewTelegram(channel.TelegramChannelConfig{Config: cfg.Channels.Telegram, Logger: logger})
				if err := tg.Connect(); err != nil {
					fail("Telegram", err.Error())
				} else {
					pass("Telegram", "@"+tg.Username())
				}
			}

			if cfg.Channels.WhatsMeow.Enabled {
				client, err := channel.OpenWhatsMeowClient(ctx, cfg.Channels.WhatsMeow.DeviceDBPath, logger)
				switch {
				case err != nil:
					fail("WhatsApp device", err.Error())
				case client.Store.ID == nil:
					fail("WhatsApp device", "not paired; run 'korabot whatsapp pair'")
				default:
					pass("WhatsApp device", client.Store.ID.User)
				}
			}

			if cfg.Server.Enabled {
				if err := checkAddr(cfg.Server.Addr); err != nil {
					warn("HTTP address", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr, err))
				} else {
					pass("HTTP address", cfg.Server.Addr+" available")
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					pass("Log file", cfg.General.LogFile)
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running korabot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nkorabot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! korabot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
