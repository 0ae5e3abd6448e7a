package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"korabot/internal/config"
)

// providerMeta describes a model provider option for the wizard.
type providerMeta struct {
	Name       string
	NeedsKey   bool
	EnvVar     string
	TextModel  string
	ImageModel string
}

var knownProviders = []providerMeta{
	{Name: "gemini", NeedsKey: true, EnvVar: "GEMINI_API_KEY", TextModel: "gemini-1.5-flash", ImageModel: "gemini-1.5-pro"},
	{Name: "openai", NeedsKey: true, EnvVar: "OPENAI_API_KEY", TextModel: "gpt-4o-mini", ImageModel: "gpt-4o"},
	{Name: "claude", NeedsKey: true, EnvVar: "ANTHROPIC_API_KEY", TextModel: "claude-sonnet-4-20250514", ImageModel: "claude-sonnet-4-20250514"},
	{Name: "ollama", TextModel: "llama3.1:8b", ImageModel: "llava:13b"},
}

var knownTransports = []struct {
	ID   string
	Desc string
}{
	{"telegram", "Telegram bot (long polling)"},
	{"whatsapp", "WhatsApp Business Cloud API (webhook)"},
	{"whatsmeow", "WhatsApp linked device (scan a QR code)"},
}

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: transport, AI models, image host, save config",
		Long:  "Guides you through picking a chat transport and its credentials, the text and image model providers, and the im.ge API key. Writes config to the path used by --config or the default.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.ReadFile(cfgPath)
			if err != nil {
				cfg = config.Defaults()
			}

			w := &wizard{in: bufio.NewReader(os.Stdin), out: os.Stdout}
			if err := w.run(cfg); err != nil {
				return err
			}

			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Printf("\nConfig saved to %s\n", cfgPath)
			if cfg.Channels.WhatsMeow.Enabled {
				fmt.Println("Next: run 'korabot whatsapp pair' to link the device, then 'korabot serve'.")
			} else {
				fmt.Println("Next: run 'korabot doctor', then 'korabot serve'.")
			}
			return nil
		},
	}
}

type wizard struct {
	in  *bufio.Reader
	out io.Writer
}

func (w *wizard) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", label)
	}
	line, err := w.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	s := strings.TrimSpace(line)
	if s == "" {
		return def, nil
	}
	return s, nil
}

// choose prints numbered options and returns the zero-based pick. Out of
// range answers fall back to def.
func (w *wizard) choose(label string, options []string, def int) (int, error) {
	for i, o := range options {
		fmt.Fprintf(w.out, "  %d) %s\n", i+1, o)
	}
	ans, err := w.ask(label, fmt.Sprint(def+1))
	if err != nil {
		return 0, err
	}
	var n int
	if c, _ := fmt.Sscanf(ans, "%d", &n); c != 1 || n < 1 || n > len(options) {
		return def, nil
	}
	return n - 1, nil
}

func (w *wizard) run(cfg *config.Config) error {
	fmt.Fprintln(w.out, "\n--- Step 1: Transport ---")
	var opts []string
	for _, t := range knownTransports {
		opts = append(opts, t.ID+": "+t.Desc)
	}
	idx, err := w.choose("Choose transport", opts, 0)
	if err != nil {
		return err
	}
	if err := w.transport(cfg, knownTransports[idx].ID); err != nil {
		return err
	}

	fmt.Fprintln(w.out, "\n--- Step 2: AI models ---")
	if err := w.model("Text replies", &cfg.AI.Text, false); err != nil {
		return err
	}
	if err := w.model("Image analysis", &cfg.AI.Image, true); err != nil {
		return err
	}

	fmt.Fprintln(w.out, "\n--- Step 3: Image host ---")
	key, err := w.ask("im.ge API key (blank disables links)", cfg.ImageHost.APIKey)
	if err != nil {
		return err
	}
	cfg.ImageHost.APIKey = key
	return nil
}

func (w *wizard) transport(cfg *config.Config, id string) error {
	ch := &cfg.Channels
	ch.Telegram.Enabled = id == "telegram"
	ch.WhatsApp.Enabled = id == "whatsapp"
	ch.WhatsMeow.Enabled = id == "whatsmeow"

	var err error
	switch id {
	case "telegram":
		ch.Telegram.Token, err = w.ask("Telegram bot token (from @BotFather)", orEnv(ch.Telegram.Token, "KORABOT_TELEGRAM_TOKEN"))
	case "whatsapp":
		cfg.Server.Enabled = true
		fields := []struct {
			label string
			dst   *string
		}{
			{"Phone number ID", &ch.WhatsApp.PhoneNumberID},
			{"Access token", &ch.WhatsApp.AccessToken},
			{"Webhook verify token", &ch.WhatsApp.VerifyToken},
			{"App secret (signature check, optional)", &ch.WhatsApp.AppSecret},
		}
		for _, f := range fields {
			if *f.dst, err = w.ask(f.label, *f.dst); err != nil {
				return err
			}
		}
		fmt.Fprintf(w.out, "  Point the Meta webhook at http://<host>%s%s\n", cfg.Server.Addr, ch.WhatsApp.WebhookPath)
	case "whatsmeow":
		ch.WhatsMeow.DeviceDBPath, err = w.ask("Device store path", ch.WhatsMeow.DeviceDBPath)
	}
	return err
}

func (w *wizard) model(label string, mc *config.ModelConfig, image bool) error {
	var names []string
	def := 0
	for i, p := range knownProviders {
		names = append(names, p.Name)
		if p.Name == mc.Provider {
			def = i
		}
	}
	idx, err := w.choose(label+" provider", names, def)
	if err != nil {
		return err
	}
	prov := knownProviders[idx]

	if prov.Name != mc.Provider {
		mc.Provider = prov.Name
		mc.APIKey = ""
		mc.APIBase = ""
		mc.Model = prov.TextModel
		if image {
			mc.Model = prov.ImageModel
		}
	}
	if mc.Model, err = w.ask(label+" model", mc.Model); err != nil {
		return err
	}
	if prov.NeedsKey {
		if mc.APIKey, err = w.ask("API key, or env reference", orEnv(mc.APIKey, prov.EnvVar)); err != nil {
			return err
		}
	}
	return nil
}

func orEnv(current, envVar string) string {
	if current != "" {
		return current
	}
	return "${" + envVar + "}"
}
