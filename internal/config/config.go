package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"discordcal/internal/ics"
)

// NOTE: Values are layered: defaults, then the YAML file, then a .env file
// (if present), then DSE_* environment variables.

// DiscordConfig describes how to reach the Discord API.
type DiscordConfig struct {
	GuildID    string `yaml:"guild_id" json:"guild_id" env:"DSE_DISCORD_GUILD_ID"`
	BotToken   string `yaml:"bot_token" json:"-" env:"DSE_DISCORD_BOT_TOKEN"`
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url" env:"DSE_DISCORD_API_BASE_URL"`

	// MaxRetries is the total number of attempts per request.
	MaxRetries int `yaml:"max_retries" json:"max_retries" env:"DSE_DISCORD_MAX_RETRIES"`
	// RetryDelay is used when a 429 response carries no retry hint.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay" env:"DSE_DISCORD_RETRY_DELAY"`
	// RequestsPerSecond throttles requests proactively. Zero disables it.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" env:"DSE_DISCORD_RPS"`
}

// CalendarConfig controls document generation.
type CalendarConfig struct {
	// Timezone is the IANA zone occurrences are rendered in. "UTC" selects
	// plain UTC times.
	Timezone string `yaml:"timezone" json:"timezone" env:"DSE_CALENDAR_TIMEZONE"`
	HexColor string `yaml:"hex_color" json:"hex_color" env:"DSE_DISCORD_CALENDAR_HEX_COLOR"`

	DefaultEventDuration time.Duration `yaml:"default_event_duration" json:"default_event_duration" env:"DSE_DEFAULT_EVENT_DURATION"`
	MaxOccurrences       int           `yaml:"max_occurrences" json:"max_occurrences" env:"DSE_MAX_OCCURRENCES"`

	// InvalidEvents is "skip" (default) or "fail".
	InvalidEvents string `yaml:"invalid_events" json:"invalid_events" env:"DSE_INVALID_EVENTS"`
}

// OutputConfig describes where the feed is written.
type OutputConfig struct {
	FilePath string `yaml:"file_path" json:"file_path" env:"DSE_OUTPUT_PATH"`
	// PublicDir, if set, is copied next to the feed after each write and
	// served by the web server.
	PublicDir string `yaml:"public_dir" json:"public_dir" env:"DSE_PUBLIC_DIR"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the feed server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LogConfig selects the log encoder and level.
type LogConfig struct {
	Level      string `yaml:"level" json:"level" env:"DSE_LOG_LEVEL"`
	Production bool   `yaml:"production" json:"production" env:"DSE_PRODUCTION"`
}

// Config is the top-level application configuration.
type Config struct {
	Discord  DiscordConfig  `yaml:"discord" json:"discord"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	Output   OutputConfig   `yaml:"output" json:"output"`

	// Listen is the HTTP listen address of the feed server. Empty disables
	// the server.
	Listen string `yaml:"listen" json:"listen" env:"DSE_LISTEN"`

	// Refresh is a cron-style schedule string (e.g. "*/15 * * * *") used
	// when running as a daemon.
	Refresh string `yaml:"refresh" json:"refresh" env:"DSE_REFRESH"`

	// RedisURL, if set, backs the guild/channel name cache with Redis.
	RedisURL string `yaml:"redis_url" json:"redis_url" env:"DSE_REDIS_URL"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Log LogConfig `yaml:"log" json:"log"`
}

const (
	defaultAPIBaseURL = "https://discord.com/api/v10"
	defaultTimezone   = "America/New_York"
	defaultHexColor   = "#6D87BE"
	defaultFilePath   = "./dist/events.ics"
	defaultRefresh    = "0 * * * *"
)

var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			APIBaseURL:        defaultAPIBaseURL,
			MaxRetries:        3,
			RetryDelay:        time.Second,
			RequestsPerSecond: 5,
		},
		Calendar: CalendarConfig{
			Timezone:             defaultTimezone,
			HexColor:             defaultHexColor,
			DefaultEventDuration: ics.DefaultEventDuration,
			MaxOccurrences:       ics.DefaultMaxOccurrences,
			InvalidEvents:        string(ics.SkipInvalid),
		},
		Output: OutputConfig{
			FilePath: defaultFilePath,
		},
		Refresh: defaultRefresh,
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. It never touches
// values that Validate would reject with a clearer message.
func (c *Config) Normalize() {
	if c.Discord.APIBaseURL == "" {
		c.Discord.APIBaseURL = defaultAPIBaseURL
	}
	if c.Discord.MaxRetries <= 0 {
		c.Discord.MaxRetries = 3
	}
	if c.Discord.RetryDelay <= 0 {
		c.Discord.RetryDelay = time.Second
	}
	if c.Discord.RequestsPerSecond < 0 {
		c.Discord.RequestsPerSecond = 0
	}
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = defaultTimezone
	}
	if c.Calendar.DefaultEventDuration <= 0 {
		c.Calendar.DefaultEventDuration = ics.DefaultEventDuration
	}
	if c.Calendar.MaxOccurrences < 0 {
		c.Calendar.MaxOccurrences = ics.DefaultMaxOccurrences
	}
	if c.Calendar.InvalidEvents == "" {
		c.Calendar.InvalidEvents = string(ics.SkipInvalid)
	}
	if c.Output.FilePath == "" {
		c.Output.FilePath = defaultFilePath
	}
	if c.Refresh == "" {
		c.Refresh = defaultRefresh
	}
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
}

// Validate fails fast on configuration that would otherwise surface per
// event or per request.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guild_id (DSE_DISCORD_GUILD_ID) is required"))
	}
	if c.Discord.BotToken == "" {
		errs = append(errs, errors.New("discord.bot_token (DSE_DISCORD_BOT_TOKEN) is required"))
	}
	if _, err := ics.NewDateFormatter(c.Calendar.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("calendar.timezone: %w", err))
	}
	if c.Calendar.HexColor != "" && !hexColorRe.MatchString(c.Calendar.HexColor) {
		errs = append(errs, fmt.Errorf("calendar.hex_color: %q is not #RRGGBB", c.Calendar.HexColor))
	}
	switch ics.InvalidEventPolicy(c.Calendar.InvalidEvents) {
	case ics.SkipInvalid, ics.FailFast:
	default:
		errs = append(errs, fmt.Errorf("calendar.invalid_events: %q is not skip or fail", c.Calendar.InvalidEvents))
	}
	if _, err := cron.ParseStandard(c.Refresh); err != nil {
		errs = append(errs, fmt.Errorf("refresh: %w", err))
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - If the file exists:
//   - read YAML on top of the defaults
//   - Then apply .env and DSE_* environment overrides and normalize.
//
// Load does not validate; call Validate once overrides are final.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// ApplyEnv loads .env from the working directory (missing file is fine)
// and overrides cfg with DSE_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	for _, target := range []any{cfg, &cfg.Discord, &cfg.Calendar, &cfg.Output, &cfg.Log} {
		if err := env.Parse(target); err != nil {
			return fmt.Errorf("parse environment: %w", err)
		}
	}
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600, since the file holds the bot token.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".discordcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
