// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Portal() PortalConfig
	Browser() BrowserConfig
	Timeouts() TimeoutConfig
	Retry() RetryConfig
	Navigator() NavigatorConfig
	Schedule() ScheduleConfig
	Database() DatabaseConfig
	Server() ServerConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserBackend(string)
	SetBrowserMaxSessions(int)

	// Server Setters
	SetServerAddr(string)
}

// Config holds the entire application configuration.
// Sections are exported so viper can populate them; callers should go through the Interface getters.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	PortalCfg    PortalConfig    `mapstructure:"portal" yaml:"portal"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	TimeoutsCfg  TimeoutConfig   `mapstructure:"timeouts" yaml:"timeouts"`
	RetryCfg     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	NavigatorCfg NavigatorConfig `mapstructure:"navigator" yaml:"navigator"`
	ScheduleCfg  ScheduleConfig  `mapstructure:"schedule" yaml:"schedule"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	ServerCfg    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Portal() PortalConfig       { return c.PortalCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Timeouts() TimeoutConfig    { return c.TimeoutsCfg }
func (c *Config) Retry() RetryConfig         { return c.RetryCfg }
func (c *Config) Navigator() NavigatorConfig { return c.NavigatorCfg }
func (c *Config) Schedule() ScheduleConfig   { return c.ScheduleCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)   { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserBackend(s string)  { c.BrowserCfg.Backend = s }
func (c *Config) SetBrowserMaxSessions(n int) { c.BrowserCfg.MaxSessions = n }
func (c *Config) SetServerAddr(addr string)   { c.ServerCfg.Addr = addr }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// PortalConfig describes the scheduling portal a session drives.
// Credentials are never written back out (yaml:"-").
type PortalConfig struct {
	BaseURL            string `mapstructure:"base_url" yaml:"base_url"`
	Username           string `mapstructure:"username" yaml:"-"`
	Password           string `mapstructure:"password" yaml:"-"`
	AdvisorSelector    string `mapstructure:"advisor_selector" yaml:"advisor_selector"`
	OperatorCode       string `mapstructure:"operator_code" yaml:"operator_code"`
	DefaultServiceCode string `mapstructure:"default_service_code" yaml:"default_service_code"`
	ProbeServiceCode   string `mapstructure:"probe_service_code" yaml:"probe_service_code"`
	SingleResultPath   string `mapstructure:"single_result_path" yaml:"single_result_path"`
	BookedURLPattern   string `mapstructure:"booked_url_pattern" yaml:"booked_url_pattern"`
}

// LoginURL is the absolute URL of the portal login page.
func (p PortalConfig) LoginURL() string { return p.BaseURL + "login" }

// SingleResultURL is the URL prefix of the single-vehicle page.
func (p PortalConfig) SingleResultURL() string { return p.BaseURL + p.SingleResultPath }

// BrowserConfig holds settings for the browser instances.
type BrowserConfig struct {
	Backend         string        `mapstructure:"backend" yaml:"backend"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU      bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth   int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	MaxSessions     int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	LaunchTimeout   time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	CloseTimeout    time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
	InstallBrowsers bool          `mapstructure:"install_browsers" yaml:"install_browsers"`
}

// TimeoutConfig centralizes the per-operation timeouts, from quick visibility
// probes up to full navigations.
type TimeoutConfig struct {
	Quick      time.Duration `mapstructure:"quick" yaml:"quick"`
	Default    time.Duration `mapstructure:"default" yaml:"default"`
	Medium     time.Duration `mapstructure:"medium" yaml:"medium"`
	Long       time.Duration `mapstructure:"long" yaml:"long"`
	Navigation time.Duration `mapstructure:"navigation" yaml:"navigation"`
}

// RetryConfig is the default retry policy for flaky UI operations.
type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay     time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	Exponential   bool          `mapstructure:"exponential" yaml:"exponential"`
	ClickAttempts int           `mapstructure:"click_attempts" yaml:"click_attempts"`
}

// NavigatorConfig tunes both list scrolling strategies.
type NavigatorConfig struct {
	Step            int           `mapstructure:"step" yaml:"step"`
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Settle          time.Duration `mapstructure:"settle" yaml:"settle"`
	BoundaryPoll    time.Duration `mapstructure:"boundary_poll" yaml:"boundary_poll"`
	FallbackStep    int           `mapstructure:"fallback_step" yaml:"fallback_step"`
	FallbackRetries int           `mapstructure:"fallback_retries" yaml:"fallback_retries"`
	FallbackWait    time.Duration `mapstructure:"fallback_wait" yaml:"fallback_wait"`
}

// ScheduleConfig holds calendar related settings.
type ScheduleConfig struct {
	Location         string        `mapstructure:"location" yaml:"location"`
	DefaultWeeks     int           `mapstructure:"default_weeks" yaml:"default_weeks"`
	WeekAdvanceWait  time.Duration `mapstructure:"week_advance_wait" yaml:"week_advance_wait"`
	PopupDrainRounds int           `mapstructure:"popup_drain_rounds" yaml:"popup_drain_rounds"`
	PersistSnapshots bool          `mapstructure:"persist_snapshots" yaml:"persist_snapshots"`
}

// LoadLocation resolves the configured time zone, falling back to local time.
func (s ScheduleConfig) LoadLocation() *time.Location {
	if s.Location == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL         string `mapstructure:"url" yaml:"-"`
	MaxConns    int32  `mapstructure:"max_conns" yaml:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	APIKeyHash      string        `mapstructure:"api_key_hash" yaml:"-"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "sdsbook")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Portal --
	v.SetDefault("portal.advisor_selector", "div.KL-Index-List-Virtuoso > div > div > div:nth-child(3) > button > div")
	v.SetDefault("portal.operator_code", "5543")
	v.SetDefault("portal.default_service_code", "01T6CLS8FZ")
	v.SetDefault("portal.probe_service_code", "01T4CLC8FZ")
	v.SetDefault("portal.single_result_path", "t1/appointments-qab/2")
	v.SetDefault("portal.booked_url_pattern", `t1/appointments-qab/1/?$`)

	// -- Browser --
	v.SetDefault("browser.backend", BackendChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.max_sessions", 4)
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.close_timeout", "10s")
	v.SetDefault("browser.install_browsers", false)

	// -- Timeouts --
	v.SetDefault("timeouts.quick", "1s")
	v.SetDefault("timeouts.default", "5s")
	v.SetDefault("timeouts.medium", "10s")
	v.SetDefault("timeouts.long", "15s")
	v.SetDefault("timeouts.navigation", "30s")

	// -- Retry --
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.exponential", true)
	v.SetDefault("retry.click_attempts", 2)

	// -- Navigator --
	v.SetDefault("navigator.step", 300)
	v.SetDefault("navigator.max_attempts", 60)
	v.SetDefault("navigator.settle", "250ms")
	v.SetDefault("navigator.boundary_poll", "100ms")
	v.SetDefault("navigator.fallback_step", 200)
	v.SetDefault("navigator.fallback_retries", 20)
	v.SetDefault("navigator.fallback_wait", "500ms")

	// -- Schedule --
	v.SetDefault("schedule.location", "America/Toronto")
	v.SetDefault("schedule.default_weeks", 1)
	v.SetDefault("schedule.week_advance_wait", "500ms")
	v.SetDefault("schedule.popup_drain_rounds", 3)
	v.SetDefault("schedule.persist_snapshots", false)

	// -- Database --
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.auto_migrate", true)

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rate_limit", 2.0)
	v.SetDefault("server.rate_burst", 4)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "30s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("portal.username", "SDSBOOK_PORTAL_USERNAME")
	v.BindEnv("portal.password", "SDSBOOK_PORTAL_PASSWORD")
	v.BindEnv("portal.base_url", "SDSBOOK_PORTAL_BASE_URL", "SDS_URL")
	v.BindEnv("database.url", "SDSBOOK_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("server.api_key_hash", "SDSBOOK_SERVER_API_KEY_HASH")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Fall back to the legacy variable names when the prefixed ones are unset.
	if cfg.PortalCfg.Username == "" {
		cfg.PortalCfg.Username = os.Getenv("USERNAME_SDS")
	}
	if cfg.PortalCfg.Password == "" {
		cfg.PortalCfg.Password = os.Getenv("PASSWORD_SDS")
	}
	cfg.PortalCfg.BaseURL = normalizeBaseURL(cfg.PortalCfg.BaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// normalizeBaseURL guarantees a trailing slash so paths can be appended directly.
func normalizeBaseURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

// Browser backends.
const (
	BackendChromedp   = "chromedp"
	BackendPlaywright = "playwright"
)

// Validate checks the configuration for required fields and sane values.
// The portal URL and credentials are checked by the commands that need them.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Backend {
	case BackendChromedp, BackendPlaywright:
	default:
		return fmt.Errorf("browser.backend must be %q or %q, got %q", BackendChromedp, BackendPlaywright, c.BrowserCfg.Backend)
	}
	if c.BrowserCfg.MaxSessions <= 0 {
		return fmt.Errorf("browser.max_sessions must be a positive integer")
	}
	if c.RetryCfg.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.RetryCfg.ClickAttempts < 1 {
		return fmt.Errorf("retry.click_attempts must be at least 1")
	}
	if c.RetryCfg.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative")
	}
	if err := c.TimeoutsCfg.Validate(); err != nil {
		return fmt.Errorf("timeouts configuration invalid: %w", err)
	}
	if err := c.NavigatorCfg.Validate(); err != nil {
		return fmt.Errorf("navigator configuration invalid: %w", err)
	}
	if c.ScheduleCfg.PopupDrainRounds < 1 {
		return fmt.Errorf("schedule.popup_drain_rounds must be at least 1")
	}
	if c.ScheduleCfg.Location != "" {
		if _, err := time.LoadLocation(c.ScheduleCfg.Location); err != nil {
			return fmt.Errorf("schedule.location: %w", err)
		}
	}
	return nil
}

// ValidatePortal checks the settings required to open a portal session.
func (p PortalConfig) ValidatePortal() error {
	if p.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required (hint: set SDSBOOK_PORTAL_BASE_URL)")
	}
	if p.Username == "" || p.Password == "" {
		return fmt.Errorf("portal credentials are required (hint: set SDSBOOK_PORTAL_USERNAME and SDSBOOK_PORTAL_PASSWORD)")
	}
	return nil
}

// Validate checks that every timeout is positive.
func (t TimeoutConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"quick":      t.Quick,
		"default":    t.Default,
		"medium":     t.Medium,
		"long":       t.Long,
		"navigation": t.Navigation,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	return nil
}

// Validate checks the NavigatorConfig settings.
func (n NavigatorConfig) Validate() error {
	if n.Step <= 0 || n.FallbackStep <= 0 {
		return fmt.Errorf("scroll steps must be positive")
	}
	if n.MaxAttempts <= 0 || n.FallbackRetries <= 0 {
		return fmt.Errorf("attempt bounds must be positive")
	}
	return nil
}
