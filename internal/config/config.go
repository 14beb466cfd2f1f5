// Package config provides configuration loading, validation, and management
// for the broadcast bot. It handles reading from YAML files, BOT_* environment
// variables, setting default values, and validating configuration parameters.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Delivery modes for inbound updates. Polling and webhook delivery are
// mutually exclusive; the orchestrator enforces the choice at startup.
const (
	DeliveryPolling = "polling"
	DeliveryWebhook = "webhook"
)

// Config defines the application configuration parameters for all components
// of the bot: Telegram credentials, bot messages, update delivery, database,
// retention sweeping, and logging.
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Retention RetentionConfig `mapstructure:"retention"`
	Log       LogConfig       `mapstructure:"log"`
}

// TelegramConfig holds the bot credentials and outbound message formatting.
type TelegramConfig struct {
	Token     string `mapstructure:"token"      validate:"required"`
	ParseMode string `mapstructure:"parse_mode" validate:"oneof=HTML Markdown MarkdownV2"`
}

// MessagesConfig holds the user-facing message texts. An empty welcome
// message disables the welcome send on chat join.
type MessagesConfig struct {
	Welcome string `mapstructure:"welcome"`
	Stop    string `mapstructure:"stop"`
}

// DeliveryConfig selects how updates reach the bot. WebhookURL is required
// in webhook mode and must pass the gateway's URL shape check.
type DeliveryConfig struct {
	Mode       string `mapstructure:"mode"        validate:"oneof=polling webhook"`
	WebhookURL string `mapstructure:"webhook_url" validate:"required_if=Mode webhook"`
	ListenAddr string `mapstructure:"listen_addr" validate:"required_if=Mode webhook"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RetentionConfig controls the sweep of old update-log and broadcast-ledger
// rows. Schedule is a cron expression for the periodic sweep job; one sweep
// also runs unconditionally at startup.
type RetentionConfig struct {
	Window   time.Duration `mapstructure:"window"   validate:"min=1h"`
	Schedule string        `mapstructure:"schedule" validate:"required"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// BotID derives the bot's own numeric id from the token prefix before ':'.
// Telegram tokens have the shape "<bot_id>:<secret>".
func (c *TelegramConfig) BotID() (int64, error) {
	prefix, _, found := strings.Cut(c.Token, ":")
	if !found {
		return 0, fmt.Errorf("telegram token has no ':' separator")
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram token prefix is not a numeric bot id: %w", err)
	}
	return id, nil
}

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. The YAML file at path
// 3. BOT_* environment variables
//
// A missing config file is not an error; defaults and environment variables
// still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := cfg.Telegram.BotID(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.parse_mode", "HTML")

	v.SetDefault("messages.welcome", "Welcome!")
	v.SetDefault("messages.stop", "You will no longer receive broadcasts. Send /start to subscribe again.")

	v.SetDefault("delivery.mode", DeliveryPolling)
	v.SetDefault("delivery.listen_addr", ":8080")

	v.SetDefault("database.path", "bot.db")

	v.SetDefault("retention.window", 7*24*time.Hour)
	v.SetDefault("retention.schedule", "0 3 * * *")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}
