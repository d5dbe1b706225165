package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/nutrilens-cli/internal/utils"
)

// EnvPrefix prefixes every environment override, e.g. NUTRILENS_DATASET_PATH.
const EnvPrefix = "NUTRILENS"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Global configuration structure.
type Global struct {
	DataDir      string `mapstructure:"data_dir" yaml:"data_dir"`
	DatasetPath  string `mapstructure:"dataset_path" yaml:"dataset_path"`
	Delimiter    string `mapstructure:"delimiter" yaml:"delimiter"`
	Sheet        string `mapstructure:"sheet" yaml:"sheet"`
	StoreDriver  string `mapstructure:"store_driver" yaml:"store_driver"`
	SQLitePath   string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	DatabaseURL  string `mapstructure:"database_url" yaml:"database_url"`
	SettingsPath string `mapstructure:"settings_path" yaml:"settings_path"`

	// DecimalSeparator of numeric dataset cells: auto, dot or comma.
	DecimalSeparator string `mapstructure:"decimal_separator" yaml:"decimal_separator"`

	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// Insight runs
	InsightConcurrency int `mapstructure:"insight_concurrency" yaml:"insight_concurrency"`
	InsightTimeoutSec  int `mapstructure:"insight_timeout_sec" yaml:"insight_timeout_sec"`
	PromptLimit        int `mapstructure:"prompt_limit" yaml:"prompt_limit"`
	BreakerMaxFailures int `mapstructure:"breaker_max_failures" yaml:"breaker_max_failures"`
	BreakerCooldownSec int `mapstructure:"breaker_cooldown_sec" yaml:"breaker_cooldown_sec"`

	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// Keys lists every configuration key in display order.
var Keys = []string{
	"data_dir", "dataset_path", "delimiter", "sheet", "decimal_separator", "store_driver", "sqlite_path", "database_url", "settings_path",
	"api_key", "default_provider", "default_model", "max_tokens", "temperature",
	"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
	"ollama_host", "ollama_timeout_sec",
	"insight_concurrency", "insight_timeout_sec", "prompt_limit", "breaker_max_failures", "breaker_cooldown_sec",
	"log_level", "listen_addr",
}

// Dir is the per-user configuration directory, ~/.nutrilens.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".nutrilens"), nil
}

// Save writes the given configuration to cfgFile, or to
// ~/.nutrilens/config.yaml when cfgFile is empty.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", "")
	v.SetDefault("dataset_path", "")
	v.SetDefault("delimiter", "")
	v.SetDefault("sheet", "")
	v.SetDefault("decimal_separator", "")
	v.SetDefault("store_driver", DriverSQLite)
	v.SetDefault("sqlite_path", "")
	v.SetDefault("database_url", "")
	v.SetDefault("settings_path", "")
	v.SetDefault("api_key", "")
	v.SetDefault("default_provider", "openrouter")
	v.SetDefault("default_model", "")
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("temperature", 0.4)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 120)
	// Insight defaults
	v.SetDefault("insight_concurrency", 3)
	v.SetDefault("insight_timeout_sec", 90)
	v.SetDefault("prompt_limit", 6000)
	v.SetDefault("breaker_max_failures", 5)
	v.SetDefault("breaker_cooldown_sec", 30)
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_addr", "127.0.0.1:8080")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.resolvePaths(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// resolvePaths fills the data directory layout: ~/.nutrilens/{nutrilens.db,settings.yaml}.
func (c *Global) resolvePaths() error {
	if c.DataDir == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		c.DataDir = dir
	}
	var err error
	if c.DataDir, err = utils.ExpandHome(c.DataDir); err != nil {
		return err
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.DataDir, "nutrilens.db")
	}
	if c.SettingsPath == "" {
		c.SettingsPath = filepath.Join(c.DataDir, "settings.yaml")
	}
	for _, p := range []*string{&c.SQLitePath, &c.SettingsPath, &c.DatasetPath} {
		if *p, err = utils.ExpandHome(*p); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects settings no command can work with.
func (c *Global) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("store_driver postgres requires database_url")
		}
	default:
		return fmt.Errorf("invalid store_driver: %s (use sqlite, postgres or memory)", c.StoreDriver)
	}
	if _, err := DelimiterRune(c.Delimiter); err != nil {
		return err
	}
	if _, err := DecimalRune(c.DecimalSeparator); err != nil {
		return err
	}
	if c.InsightConcurrency < 0 || c.InsightTimeoutSec < 0 || c.PromptLimit < 0 {
		return fmt.Errorf("insight settings must not be negative")
	}
	return nil
}

// StoreTarget names the database the configured store writes to, without
// credentials. The import flag is kept per target.
func (c *Global) StoreTarget() string {
	switch c.StoreDriver {
	case DriverPostgres:
		return DriverPostgres + ":" + redactDSN(c.DatabaseURL)
	case DriverMemory:
		return DriverMemory
	default:
		p, err := filepath.Abs(c.SQLitePath)
		if err != nil {
			p = c.SQLitePath
		}
		return DriverSQLite + ":" + p
	}
}

// redactDSN keeps host, port and database of a lib/pq URL or key=value DSN.
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return u.Host + u.Path
	}
	var kept []string
	for _, kv := range strings.Fields(dsn) {
		switch strings.ToLower(strings.SplitN(kv, "=", 2)[0]) {
		case "host", "port", "dbname":
			kept = append(kept, kv)
		}
	}
	return strings.Join(kept, " ")
}

// DelimiterRune maps the delimiter setting to a rune; 0 means auto-detect.
func DelimiterRune(s string) (rune, error) {
	switch s {
	case "", "auto":
		return 0, nil
	case "tab", `\t`, "\t":
		return '\t', nil
	case "comma", ",":
		return ',', nil
	case "semicolon", ";":
		return ';', nil
	case "pipe", "|":
		return '|', nil
	}
	return 0, fmt.Errorf("invalid delimiter: %q (use auto, comma, semicolon, tab or pipe)", s)
}

// DecimalRune maps the decimal_separator setting to a rune; 0 means detect
// per cell.
func DecimalRune(s string) (rune, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return 0, nil
	case "dot", "period", ".":
		return '.', nil
	case "comma", ",":
		return ',', nil
	}
	return 0, fmt.Errorf("invalid decimal_separator: %q (use auto, dot or comma)", s)
}

// Set assigns one key from its string form. Unknown keys and values that do
// not parse are errors.
func (c *Global) Set(key, val string) error {
	if _, ok := c.Get(key); !ok {
		return fmt.Errorf("unknown key: %s", key)
	}
	var err error
	switch key {
	case "data_dir":
		c.DataDir = val
	case "dataset_path":
		c.DatasetPath = val
	case "delimiter":
		_, err = DelimiterRune(val)
		c.Delimiter = val
	case "sheet":
		c.Sheet = val
	case "decimal_separator":
		_, err = DecimalRune(val)
		c.DecimalSeparator = val
	case "store_driver":
		c.StoreDriver = strings.ToLower(val)
	case "sqlite_path":
		c.SQLitePath = val
	case "database_url":
		c.DatabaseURL = val
	case "settings_path":
		c.SettingsPath = val
	case "api_key":
		c.APIKey = val
	case "default_provider":
		switch strings.ToLower(val) {
		case "openrouter":
			c.DefaultProvider = "openrouter"
		case "ollama", "local":
			c.DefaultProvider = "ollama"
		default:
			return fmt.Errorf("invalid default_provider: %s (use openrouter or ollama)", val)
		}
	case "default_model":
		c.DefaultModel = val
	case "temperature":
		c.Temperature, err = parseFloat(key, val)
	case "max_tokens":
		c.MaxTokens, err = parseInt(key, val)
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = parseInt(key, val)
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = parseInt(key, val)
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = parseInt(key, val)
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = parseInt(key, val)
	case "ollama_host":
		c.OllamaHost = val
	case "ollama_timeout_sec":
		c.OllamaTimeoutSec, err = parseInt(key, val)
	case "insight_concurrency":
		c.InsightConcurrency, err = parseInt(key, val)
	case "insight_timeout_sec":
		c.InsightTimeoutSec, err = parseInt(key, val)
	case "prompt_limit":
		c.PromptLimit, err = parseInt(key, val)
	case "breaker_max_failures":
		c.BreakerMaxFailures, err = parseInt(key, val)
	case "breaker_cooldown_sec":
		c.BreakerCooldownSec, err = parseInt(key, val)
	case "log_level":
		c.LogLevel = strings.ToLower(val)
	case "listen_addr":
		c.ListenAddr = val
	}
	if err != nil {
		return err
	}
	return c.Validate()
}

// Get returns the string form of key, masking the API key.
func (c *Global) Get(key string) (string, bool) {
	switch key {
	case "data_dir":
		return c.DataDir, true
	case "dataset_path":
		return c.DatasetPath, true
	case "delimiter":
		return c.Delimiter, true
	case "sheet":
		return c.Sheet, true
	case "decimal_separator":
		return c.DecimalSeparator, true
	case "store_driver":
		return c.StoreDriver, true
	case "sqlite_path":
		return c.SQLitePath, true
	case "database_url":
		return Mask(c.DatabaseURL), true
	case "settings_path":
		return c.SettingsPath, true
	case "api_key":
		return Mask(c.APIKey), true
	case "default_provider":
		return c.DefaultProvider, true
	case "default_model":
		return c.DefaultModel, true
	case "max_tokens":
		return fmt.Sprint(c.MaxTokens), true
	case "temperature":
		return fmt.Sprintf("%.3f", c.Temperature), true
	case "http_timeout_sec":
		return fmt.Sprint(c.HTTPTimeoutSec), true
	case "retry_max_attempts":
		return fmt.Sprint(c.RetryMaxAttempts), true
	case "retry_base_delay_ms":
		return fmt.Sprint(c.RetryBaseDelayMs), true
	case "retry_max_delay_ms":
		return fmt.Sprint(c.RetryMaxDelayMs), true
	case "ollama_host":
		return c.OllamaHost, true
	case "ollama_timeout_sec":
		return fmt.Sprint(c.OllamaTimeoutSec), true
	case "insight_concurrency":
		return fmt.Sprint(c.InsightConcurrency), true
	case "insight_timeout_sec":
		return fmt.Sprint(c.InsightTimeoutSec), true
	case "prompt_limit":
		return fmt.Sprint(c.PromptLimit), true
	case "breaker_max_failures":
		return fmt.Sprint(c.BreakerMaxFailures), true
	case "breaker_cooldown_sec":
		return fmt.Sprint(c.BreakerCooldownSec), true
	case "log_level":
		return c.LogLevel, true
	case "listen_addr":
		return c.ListenAddr, true
	}
	return "", false
}

func parseInt(key, val string) (int, error) {
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid int for %s: %v", key, val)
	}
	return i, nil
}

func parseFloat(key, val string) (float64, error) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid float for %s: %v", key, val)
	}
	return f, nil
}

// Mask hides all but the ends of a secret.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
