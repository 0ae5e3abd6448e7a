package config

const (
	DefaultSystemPrompt   = "KORA AI"
	DefaultAnalysisPrompt = "Analyze the image keenly and explain its content."
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			CommandPrefix:         "/",
			MaxConcurrentMessages: 5,
		},
		AI: AIConfig{
			Text: ModelConfig{
				Provider:    "gemini",
				Model:       "gemini-1.5-flash",
				Temperature: 0.3,
				TopP:        0.95,
				MaxTokens:   8192,
			},
			Image: ModelConfig{
				Provider:  "gemini",
				Model:     "gemini-1.5-pro",
				MaxTokens: 8192,
			},
			SystemInstruction: DefaultSystemPrompt,
			AnalysisPrompt:    DefaultAnalysisPrompt,
			TimeoutSeconds:    60,
		},
		ImageHost: ImageHostConfig{
			URL:            "https://im.ge/api/1/upload",
			TimeoutSeconds: 30,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				TimeoutSeconds: 30,
			},
			WhatsApp: WhatsAppConfig{
				WebhookPath:    "/webhook/whatsapp",
				APIBase:        "https://graph.facebook.com/v21.0",
				TimeoutSeconds: 30,
			},
			WhatsMeow: WhatsMeowConfig{
				DeviceDBPath:   "~/.korabot/whatsmeow.db",
				TimeoutSeconds: 30,
			},
		},
		History: HistoryConfig{
			Driver:     "sqlite",
			DBPath:     "~/.korabot/history.db",
			SweepEvery: "1m",
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8080",
			Metrics: true,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 20,
			Burst:     5,
		},
	}
}
