package callwatch

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all runtime settings for the callwatch service.
type Config struct {
	Addr              string
	PollInterval      time.Duration
	BitrixWebhookBase string
	OpenAIAPIKey      string
	TelegramBotToken  string
	TelegramChatID    string
	LimitLast         int
	LanguageHint      string
	StateFile         string
	ScriptRulesFile   string
	HTTPTimeout       time.Duration
}

// fileConfig is the optional TOML config file shape. Every field can still be
// overridden by environment variables.
type fileConfig struct {
	Addr                string `toml:"addr"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	BitrixWebhookBase   string `toml:"bitrix_webhook_base"`
	OpenAIAPIKey        string `toml:"openai_api_key"`
	TelegramBotToken    string `toml:"tg_bot_token"`
	TelegramChatID      string `toml:"tg_chat_id"`
	LimitLast           int    `toml:"limit_last"`
	LanguageHint        string `toml:"language_hint"`
	StateFile           string `toml:"state_file"`
	ScriptRulesFile     string `toml:"script_rules_file"`
	HTTPTimeoutSeconds  int    `toml:"http_timeout_seconds"`
}

// LoadConfig assembles the config from defaults, then the optional TOML file
// (CALLWATCH_CONFIG, default callwatch.toml), then environment variables.
// Secrets are NOT validated here: the health server must stay up even when
// the monitor cannot run, so missing secrets only surface per poll cycle.
func LoadConfig() (Config, error) {
	cfg := Config{
		Addr:            ":8080",
		PollInterval:    180 * time.Second,
		LimitLast:       1,
		LanguageHint:    "uk",
		StateFile:       "b24_monitor_state.json",
		ScriptRulesFile: "script_rules.yaml",
		HTTPTimeout:     60 * time.Second,
	}

	path := os.Getenv("CALLWATCH_CONFIG")
	if path == "" {
		path = "callwatch.toml"
	}
	if _, err := os.Stat(path); err == nil {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		applyFileConfig(&cfg, fc)
	}

	applyEnv(&cfg)

	// Bitrix REST method URLs are built by appending to the base.
	if cfg.BitrixWebhookBase != "" && !strings.HasSuffix(cfg.BitrixWebhookBase, "/") {
		cfg.BitrixWebhookBase += "/"
	}
	if cfg.LimitLast < 1 {
		cfg.LimitLast = 1
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.PollIntervalSeconds > 0 {
		cfg.PollInterval = time.Duration(fc.PollIntervalSeconds) * time.Second
	}
	if fc.BitrixWebhookBase != "" {
		cfg.BitrixWebhookBase = fc.BitrixWebhookBase
	}
	if fc.OpenAIAPIKey != "" {
		cfg.OpenAIAPIKey = fc.OpenAIAPIKey
	}
	if fc.TelegramBotToken != "" {
		cfg.TelegramBotToken = fc.TelegramBotToken
	}
	if fc.TelegramChatID != "" {
		cfg.TelegramChatID = fc.TelegramChatID
	}
	if fc.LimitLast > 0 {
		cfg.LimitLast = fc.LimitLast
	}
	if fc.LanguageHint != "" {
		cfg.LanguageHint = fc.LanguageHint
	}
	if fc.StateFile != "" {
		cfg.StateFile = fc.StateFile
	}
	if fc.ScriptRulesFile != "" {
		cfg.ScriptRulesFile = fc.ScriptRulesFile
	}
	if fc.HTTPTimeoutSeconds > 0 {
		cfg.HTTPTimeout = time.Duration(fc.HTTPTimeoutSeconds) * time.Second
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if n := envInt("POLL_INTERVAL_SECONDS"); n > 0 {
		cfg.PollInterval = time.Duration(n) * time.Second
	}
	if v := os.Getenv("BITRIX_WEBHOOK_BASE"); v != "" {
		cfg.BitrixWebhookBase = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("TG_BOT_TOKEN"); v != "" {
		cfg.TelegramBotToken = v
	}
	if v := os.Getenv("TG_CHAT_ID"); v != "" {
		cfg.TelegramChatID = v
	}
	if n := envInt("LIMIT_LAST"); n > 0 {
		cfg.LimitLast = n
	}
	if v := os.Getenv("LANGUAGE_HINT"); v != "" {
		cfg.LanguageHint = v
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		cfg.StateFile = v
	}
	if v := os.Getenv("SCRIPT_RULES_FILE"); v != "" {
		cfg.ScriptRulesFile = v
	}
	if n := envInt("HTTP_TIMEOUT_SECONDS"); n > 0 {
		cfg.HTTPTimeout = time.Duration(n) * time.Second
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// MissingSecrets returns the env-style names of required credentials that are
// not set. The monitor skips poll cycles while any are missing.
func (c Config) MissingSecrets() []string {
	var missing []string
	if c.BitrixWebhookBase == "" {
		missing = append(missing, "BITRIX_WEBHOOK_BASE")
	}
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.TelegramBotToken == "" {
		missing = append(missing, "TG_BOT_TOKEN")
	}
	if c.TelegramChatID == "" {
		missing = append(missing, "TG_CHAT_ID")
	}
	return missing
}
