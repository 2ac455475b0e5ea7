package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"slipbot/internal/printer"
)

// Config is the root configuration for slipbot.
type Config struct {
	General   GeneralConfig  `json:"general"`
	Printer   PrinterConfig  `json:"printer"`
	Commands  CommandsConfig `json:"commands"`
	AllowFrom FlexStringList `json:"allow_from"` // global sender allow-list; empty = allow all
	Channels  ChannelsConfig `json:"channels"`
	Metrics   MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel      string `json:"logLevel"`
	LogFile       string `json:"logFile,omitempty"` // optional log file path
	LogMaxSizeMB  int    `json:"logMaxSizeMB"`
	LogMaxBackups int    `json:"logMaxBackups"`
	Timezone      string `json:"timezone,omitempty"` // IANA name for slip timestamps; empty = local
	Concurrency   int    `json:"concurrency"`        // messages dispatched in parallel
}

type PrinterConfig struct {
	Device         string `json:"device"` // file path (/dev/usb/lp0) or host[:port]
	Profile        string `json:"profile"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	ImageWidth     int    `json:"imageWidth"`
}

type CommandsConfig struct {
	Help          string  `json:"help"`
	Todo          string  `json:"todo"`
	RatePerMinute float64 `json:"ratePerMinute"` // 0 = unlimited
	RateBurst     int     `json:"rateBurst"`
}

type ChannelsConfig struct {
	Signal   SignalConfig   `json:"signal"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Slack    SlackConfig    `json:"slack"`
	CLI      CLIConfig      `json:"cli"`
}

type SignalConfig struct {
	Enabled   bool           `json:"enabled"`
	URL       string         `json:"url"`    // signal-cli-rest-api base URL
	Number    string         `json:"number"` // bot phone number
	AllowFrom FlexStringList `json:"allowFrom,omitempty"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom,omitempty"`
}

type DiscordConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	GuildID   string         `json:"guildId,omitempty"` // optional: restrict to specific guild
	AllowFrom FlexStringList `json:"allowFrom,omitempty"`
}

type SlackConfig struct {
	Enabled   bool           `json:"enabled"`
	BotToken  string         `json:"botToken"`
	AppToken  string         `json:"appToken"` // required for Socket Mode
	AllowFrom FlexStringList `json:"allowFrom,omitempty"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Endpoint string `json:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// Location returns the time zone for slip timestamps.
func (g GeneralConfig) Location() (*time.Location, error) {
	if g.Timezone == "" || strings.EqualFold(g.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(g.Timezone)
}

// Timeout returns the printer timeout as a duration.
func (p PrinterConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// DefaultConfigDir returns the default config directory (~/.slipbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".slipbot"
	}
	return filepath.Join(home, ".slipbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// isYAML reports whether path should be read and written as YAML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	if isYAML(path) {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	if cfg.General.LogFile != "" && !filepath.IsAbs(cfg.General.LogFile) {
		cfg.General.LogFile = filepath.Join(filepath.Dir(path), cfg.General.LogFile)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share the
// json struct tags and FlexStringList handling.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg to path as JSON, or YAML for .yaml/.yml paths.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if isYAML(path) {
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
	}

	// tokens live in this file
	return os.WriteFile(path, data, 0o600)
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if !logLevels[strings.ToLower(cfg.General.LogLevel)] {
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.Concurrency < 1 || cfg.General.Concurrency > 64 {
		errs = append(errs, "general.concurrency must be between 1 and 64")
	}
	if cfg.General.LogMaxSizeMB < 1 {
		errs = append(errs, "general.logMaxSizeMB must be >= 1")
	}
	if cfg.General.LogMaxBackups < 0 {
		errs = append(errs, "general.logMaxBackups must be >= 0")
	}
	if _, err := cfg.General.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("general.timezone: %v", err))
	}

	if strings.TrimSpace(cfg.Printer.Device) == "" {
		errs = append(errs, "printer.device is required")
	}
	if _, err := printer.LookupProfile(cfg.Printer.Profile); err != nil {
		errs = append(errs, fmt.Sprintf("printer.profile: %v", err))
	}
	if cfg.Printer.TimeoutSeconds < 1 {
		errs = append(errs, "printer.timeoutSeconds must be >= 1")
	}
	if cfg.Printer.ImageWidth < 8 {
		errs = append(errs, "printer.imageWidth must be >= 8")
	}

	help, todo := strings.TrimSpace(cfg.Commands.Help), strings.TrimSpace(cfg.Commands.Todo)
	if help == "" || strings.ContainsAny(help, " \t\n") {
		errs = append(errs, "commands.help must be a single word")
	}
	if todo == "" || strings.ContainsAny(todo, " \t\n") {
		errs = append(errs, "commands.todo must be a single word")
	}
	if help != "" && strings.EqualFold(help, todo) {
		errs = append(errs, "commands.help and commands.todo must differ")
	}
	if cfg.Commands.RatePerMinute < 0 {
		errs = append(errs, "commands.ratePerMinute must be >= 0")
	}

	ch := cfg.Channels
	if ch.Signal.Enabled {
		if ch.Signal.URL == "" {
			errs = append(errs, "channels.signal.url is required when signal is enabled")
		}
		if ch.Signal.Number == "" {
			errs = append(errs, "channels.signal.number is required when signal is enabled")
		}
	}
	if ch.Telegram.Enabled && ch.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}
	if ch.Discord.Enabled && ch.Discord.Token == "" {
		errs = append(errs, "channels.discord.token is required when discord is enabled")
	}
	if ch.Slack.Enabled && (ch.Slack.BotToken == "" || ch.Slack.AppToken == "") {
		errs = append(errs, "channels.slack.botToken and appToken are required when slack is enabled")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Addr == "" {
			errs = append(errs, "metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
			errs = append(errs, "metrics.endpoint must start with /")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
