package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "WAYBACKSCRAPER_"

// Config holds all configuration options for the archive scraper
type Config struct {
	// Wayback Machine endpoints and query options
	Archive ArchiveConfig `yaml:"archive" json:"archive"`

	// Accounts scraped when none are given on the command line
	Accounts []string `yaml:"accounts" json:"accounts"`

	Output   OutputConfig   `yaml:"output" json:"output"`
	Download DownloadConfig `yaml:"download" json:"download"`
	Dedup    DedupConfig    `yaml:"dedup" json:"dedup"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	UI       UIConfig       `yaml:"ui" json:"ui"`
}

// ArchiveConfig holds the CDX and snapshot endpoint configuration
type ArchiveConfig struct {
	CDXURL     string `yaml:"cdx_url" json:"cdx_url"`
	WebURL     string `yaml:"web_url" json:"web_url"`
	ProfileURL string `yaml:"profile_url" json:"profile_url"`
	UserAgent  string `yaml:"user_agent" json:"user_agent"`

	// Inclusive capture window as Wayback timestamps (1 to 14 digits)
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`

	PageSize     int  `yaml:"page_size" json:"page_size"`
	OnlyOKStatus bool `yaml:"only_ok_status" json:"only_ok_status"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	LedgerFile        string `yaml:"ledger_file" json:"ledger_file"`
	ImageFailureFile  string `yaml:"image_failure_file" json:"image_failure_file"`
	SnapshotFailFile  string `yaml:"snapshot_failure_file" json:"snapshot_failure_file"`
	CreateAccountDirs bool   `yaml:"create_account_dirs" json:"create_account_dirs"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout" json:"snapshot_timeout"`
	RawFallback     bool          `yaml:"raw_fallback" json:"raw_fallback"`
}

// DedupConfig sizes the in-memory caches used to skip repeated work
type DedupConfig struct {
	DigestCacheSize int `yaml:"digest_cache_size" json:"digest_cache_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// MetricsConfig controls the prometheus textfile export
type MetricsConfig struct {
	Textfile string `yaml:"textfile" json:"textfile"`
}

// UIConfig holds terminal output preferences
type UIConfig struct {
	Progress bool `yaml:"progress" json:"progress"`
	Color    bool `yaml:"color" json:"color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			CDXURL:       "https://web.archive.org/cdx/search/cdx",
			WebURL:       "https://web.archive.org/web",
			ProfileURL:   "twitter.com/%s",
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			PageSize:     5000,
			OnlyOKStatus: true,
		},
		Output: OutputConfig{
			BaseDirectory:     "twitter_images",
			LedgerFile:        "downloaded_urls.log",
			ImageFailureFile:  "image_failures.txt",
			SnapshotFailFile:  "snapshot_failures.txt",
			CreateAccountDirs: true,
		},
		Download: DownloadConfig{
			Timeout:         60 * time.Second,
			SnapshotTimeout: 30 * time.Second,
			RawFallback:     true,
		},
		Dedup: DedupConfig{
			DigestCacheSize: 4096,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		UI: UIConfig{
			Progress: true,
			Color:    true,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := getenv("CDX_URL"); v != "" {
		c.Archive.CDXURL = v
	}
	if v := getenv("WEB_URL"); v != "" {
		c.Archive.WebURL = v
	}
	if v := getenv("USER_AGENT"); v != "" {
		c.Archive.UserAgent = v
	}
	if v := getenv("FROM"); v != "" {
		c.Archive.From = v
	}
	if v := getenv("TO"); v != "" {
		c.Archive.To = v
	}
	if v := getenv("ACCOUNTS"); v != "" {
		c.Accounts = splitList(v)
	}
	if v := getenv("OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := getenv("DOWNLOAD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDOWNLOAD_TIMEOUT: %w", EnvPrefix, err))
		} else {
			c.Download.Timeout = d
		}
	}
	if v := getenv("RAW_FALLBACK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRAW_FALLBACK: %w", EnvPrefix, err))
		} else {
			c.Download.RawFallback = b
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := getenv("METRICS_FILE"); v != "" {
		c.Metrics.Textfile = v
	}

	return errors.Join(errs...)
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the default locations; finding nothing there is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".waybackscraper.yaml",
		".waybackscraper.yml",
		"waybackscraper.yaml",
		filepath.Join(home, ".config", "waybackscraper", "config.yaml"),
		filepath.Join(home, ".waybackscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Archive.CDXURL == "" {
		errs = append(errs, errors.New("archive cdx_url is required"))
	}
	if c.Archive.WebURL == "" {
		errs = append(errs, errors.New("archive web_url is required"))
	}
	if strings.Count(c.Archive.ProfileURL, "%s") != 1 {
		errs = append(errs, errors.New("archive profile_url must contain exactly one %s"))
	}
	if c.Archive.PageSize < 0 {
		errs = append(errs, errors.New("archive page_size cannot be negative"))
	}
	if err := validTimestamp("from", c.Archive.From); err != nil {
		errs = append(errs, err)
	}
	if err := validTimestamp("to", c.Archive.To); err != nil {
		errs = append(errs, err)
	}
	if c.Archive.From != "" && c.Archive.To != "" && padTimestamp(c.Archive.From, '0') > padTimestamp(c.Archive.To, '9') {
		errs = append(errs, errors.New("archive from must not be after to"))
	}

	for _, account := range c.Accounts {
		if err := ValidateAccount(account); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	for name, file := range map[string]string{
		"ledger_file":           c.Output.LedgerFile,
		"image_failure_file":    c.Output.ImageFailureFile,
		"snapshot_failure_file": c.Output.SnapshotFailFile,
	} {
		if file == "" || strings.ContainsAny(file, `/\`) {
			errs = append(errs, fmt.Errorf("output %s must be a plain file name", name))
		}
	}

	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.SnapshotTimeout <= 0 {
		errs = append(errs, errors.New("snapshot timeout must be positive"))
	}
	if c.Dedup.DigestCacheSize < 0 {
		errs = append(errs, errors.New("dedup digest_cache_size cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, errors.New("invalid log format"))
	}

	return errors.Join(errs...)
}

// ValidateAccount rejects account names that cannot be used as a directory
func ValidateAccount(account string) error {
	switch {
	case strings.TrimSpace(account) == "":
		return errors.New("account name cannot be empty")
	case account == "." || account == "..":
		return fmt.Errorf("invalid account name %q", account)
	case strings.ContainsAny(account, `/\?#%`):
		return fmt.Errorf("account name %q contains invalid characters", account)
	}
	return nil
}

func validTimestamp(field, ts string) error {
	if ts == "" {
		return nil
	}
	if len(ts) > 14 {
		return fmt.Errorf("archive %s must have at most 14 digits", field)
	}
	for _, r := range ts {
		if r < '0' || r > '9' {
			return fmt.Errorf("archive %s must contain only digits", field)
		}
	}
	return nil
}

func padTimestamp(ts string, fill byte) string {
	return ts + strings.Repeat(string(fill), 14-len(ts))
}

// AccountDir returns the directory holding an account's files
func (c *Config) AccountDir(account string) string {
	if !c.Output.CreateAccountDirs {
		return c.Output.BaseDirectory
	}
	return filepath.Join(c.Output.BaseDirectory, account)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Zero values are ignored so unset flags never clobber other sources.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["from"].(string); ok && v != "" {
		c.Archive.From = v
	}
	if v, ok := flags["to"].(string); ok && v != "" {
		c.Archive.To = v
	}
	if v, ok := flags["timeout"].(time.Duration); ok && v > 0 {
		c.Download.Timeout = v
	}
	if v, ok := flags["no-fallback"].(bool); ok && v {
		c.Download.RawFallback = false
	}
	if v, ok := flags["metrics-file"].(string); ok && v != "" {
		c.Metrics.Textfile = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["no-progress"].(bool); ok && v {
		c.UI.Progress = false
	}
	if v, ok := flags["no-color"].(bool); ok && v {
		c.UI.Color = false
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".waybackscraper.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
