package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:      "info",
			LogFile:       "bot.log",
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
			Concurrency:   4,
		},
		Printer: PrinterConfig{
			Device:         "/dev/usb/lp0",
			Profile:        "TM-T88IV",
			TimeoutSeconds: 10,
			ImageWidth:     512,
		},
		Commands: CommandsConfig{
			Help:          "!help",
			Todo:          "!todo",
			RatePerMinute: 0,
			RateBurst:     5,
		},
		Channels: ChannelsConfig{
			Signal: SignalConfig{
				URL: "http://localhost:8080",
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}
