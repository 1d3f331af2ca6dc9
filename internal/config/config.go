// The application's root configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/xkilldash9x/foodscout/internal/humanoid"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
	mu       sync.RWMutex
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Session   SessionConfig   `mapstructure:"session"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Sink      SinkConfig      `mapstructure:"sink"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// BrowserConfig holds settings for the automated browser.
type BrowserConfig struct {
	// Headless defaults to false so the operator can solve CAPTCHAs in the window.
	Headless         bool              `mapstructure:"headless"`
	IgnoreTLSErrors  bool              `mapstructure:"ignore_tls_errors"`
	ExecPath         string            `mapstructure:"exec_path"`
	Args             []string          `mapstructure:"args"`
	Viewport         map[string]int    `mapstructure:"viewport"`
	UserAgents       []string          `mapstructure:"user_agents"`
	Locale           string            `mapstructure:"locale"`
	AcceptLanguage   string            `mapstructure:"accept_language"`
	Platform         string            `mapstructure:"platform"`
	ActionsPerSecond float64           `mapstructure:"actions_per_second"`
	Humanoid         humanoid.Config   `mapstructure:"humanoid"`
	Headers          map[string]string `mapstructure:"headers"`
}

// SessionConfig controls where and how session records are kept.
type SessionConfig struct {
	Dir             string `mapstructure:"dir"`
	EncryptValues   bool   `mapstructure:"encrypt_values"`
	KeyringService  string `mapstructure:"keyring_service"`
	KeyringUser     string `mapstructure:"keyring_user"`
	FallbackKeyFile string `mapstructure:"fallback_key_file"`
}

// TimeoutsConfig bounds every wait other than the operator pause.
type TimeoutsConfig struct {
	Navigation   time.Duration `mapstructure:"navigation"`
	Strategy     time.Duration `mapstructure:"strategy"`
	Signal       time.Duration `mapstructure:"signal"`
	LoginStep    time.Duration `mapstructure:"login_step"`
	SecondFactor time.Duration `mapstructure:"second_factor"`
	Consent      time.Duration `mapstructure:"consent"`
	Suggestions  time.Duration `mapstructure:"suggestions"`
	Search       time.Duration `mapstructure:"search"`
	Settle       time.Duration `mapstructure:"settle"`
}

// ArtifactsConfig names the diagnostic files written on failure.
type ArtifactsConfig struct {
	// ErrorScreenshot may contain "{platform}", replaced with the platform name.
	ErrorScreenshot string `mapstructure:"error_screenshot"`
}

// SinkConfig selects where scrape results are stored in addition to stdout.
type SinkConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DefaultUserAgents is the rotation pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
}

var userConfigDir = os.UserConfigDir

// DataDir is the per-user directory that holds stored sessions and the
// fallback key, so they are found regardless of the working directory.
// Without a resolvable config directory it falls back to ".foodscout".
func DataDir() string {
	dir, err := userConfigDir()
	if err != nil || dir == "" {
		return ".foodscout"
	}
	return filepath.Join(dir, "foodscout")
}

// SetDefaults seeds every key so that environment variables can override them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "foodscout")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})
	v.SetDefault("browser.user_agents", DefaultUserAgents)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")
	v.SetDefault("browser.platform", "MacIntel")
	v.SetDefault("browser.actions_per_second", 0)
	hc := humanoid.DefaultConfig()
	v.SetDefault("browser.humanoid.enabled", hc.Enabled)
	v.SetDefault("browser.humanoid.pause_min_ms", hc.PauseMinMs)
	v.SetDefault("browser.humanoid.pause_max_ms", hc.PauseMaxMs)
	v.SetDefault("browser.humanoid.perlin_amplitude", hc.PerlinAmplitude)
	v.SetDefault("browser.humanoid.move_steps", hc.MoveSteps)

	v.SetDefault("session.dir", filepath.Join(DataDir(), "sessions"))
	v.SetDefault("session.encrypt_values", false)
	v.SetDefault("session.keyring_service", "foodscout")
	v.SetDefault("session.keyring_user", "session-key")
	v.SetDefault("session.fallback_key_file", filepath.Join(DataDir(), "session.key"))

	v.SetDefault("timeouts.navigation", 60*time.Second)
	v.SetDefault("timeouts.strategy", 5*time.Second)
	v.SetDefault("timeouts.signal", 3*time.Second)
	v.SetDefault("timeouts.login_step", 30*time.Second)
	v.SetDefault("timeouts.second_factor", 10*time.Second)
	v.SetDefault("timeouts.consent", 5*time.Second)
	v.SetDefault("timeouts.suggestions", 15*time.Second)
	v.SetDefault("timeouts.search", 15*time.Second)
	v.SetDefault("timeouts.settle", 5*time.Second)

	v.SetDefault("artifacts.error_screenshot", "{platform}_error.png")
	v.SetDefault("sink.dsn", "")
}

// Validate rejects values the application cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Session.Dir) == "" {
		errs = append(errs, errors.New("session.dir is a required configuration field"))
	}
	if c.Session.EncryptValues && c.Session.KeyringService == "" {
		errs = append(errs, errors.New("session.keyring_service is required when session.encrypt_values is set"))
	}
	if c.Browser.ActionsPerSecond < 0 {
		errs = append(errs, errors.New("browser.actions_per_second must not be negative"))
	}
	if w, h := c.Browser.Viewport["width"], c.Browser.Viewport["height"]; w < 0 || h < 0 {
		errs = append(errs, errors.New("browser.viewport dimensions must not be negative"))
	}
	if c.Browser.Humanoid.PauseMinMs < 0 || c.Browser.Humanoid.PauseMaxMs < c.Browser.Humanoid.PauseMinMs {
		errs = append(errs, errors.New("browser.humanoid pause bounds must satisfy 0 <= pause_min_ms <= pause_max_ms"))
	}

	required := []struct {
		name string
		d    time.Duration
	}{
		{"navigation", c.Timeouts.Navigation},
		{"strategy", c.Timeouts.Strategy},
		{"signal", c.Timeouts.Signal},
		{"login_step", c.Timeouts.LoginStep},
		{"second_factor", c.Timeouts.SecondFactor},
		{"consent", c.Timeouts.Consent},
		{"suggestions", c.Timeouts.Suggestions},
		{"search", c.Timeouts.Search},
	}
	for _, r := range required {
		if r.d <= 0 {
			errs = append(errs, fmt.Errorf("timeouts.%s must be a positive duration", r.name))
		}
	}
	if c.Timeouts.Settle < 0 {
		errs = append(errs, errors.New("timeouts.settle must not be negative"))
	}
	return errors.Join(errs...)
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			loadErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		mu.Lock()
		instance = &cfg
		mu.Unlock()
	})
	return loadErr
}

// Set replaces the global configuration. Intended for tests and embedding.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}

// Default returns a fully populated configuration without reading any file.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default configuration does not decode: %v", err))
	}
	return &cfg
}

// ErrorScreenshotPath renders the configured screenshot path for a platform.
func (c *Config) ErrorScreenshotPath(platform string) string {
	p := c.Artifacts.ErrorScreenshot
	if p == "" {
		p = "{platform}_error.png"
	}
	return strings.ReplaceAll(p, "{platform}", platform)
}

// reset clears the singleton. Tests only.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	loadErr = nil
	once = sync.Once{}
}
