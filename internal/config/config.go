// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/brandpilot/api/schemas"
)

// EnvPrefix is prepended to every environment variable viper looks up.
const EnvPrefix = "BRANDPILOT"

// PassphraseEnv holds the vault passphrase. It is bound explicitly so it never
// has to appear in a config file.
const PassphraseEnv = "BRANDPILOT_ENCRYPTION_KEY"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Vault() VaultConfig
	Browser() BrowserConfig
	Login() LoginConfig
	Navigator() NavigatorConfig
	Debug() DebugConfig
}

// Config holds the entire application configuration. Automation overrides are
// not part of it: they are read per run with Overrides so that an unset key
// stays distinguishable from a zero value.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	VaultCfg     VaultConfig     `mapstructure:"vault" yaml:"vault"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	LoginCfg     LoginConfig     `mapstructure:"login" yaml:"login"`
	NavigatorCfg NavigatorConfig `mapstructure:"navigator" yaml:"navigator"`
	DebugCfg     DebugConfig     `mapstructure:"debug" yaml:"debug"`
}

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Vault() VaultConfig         { return c.VaultCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Login() LoginConfig         { return c.LoginCfg }
func (c *Config) Navigator() NavigatorConfig { return c.NavigatorCfg }
func (c *Config) Debug() DebugConfig         { return c.DebugCfg }

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

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	MaxConns       int32         `mapstructure:"max_conns" yaml:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	// QueryTimeout bounds loading the records of one run.
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

// VaultConfig carries the passphrase used to open stored secrets.
type VaultConfig struct {
	Passphrase string `mapstructure:"passphrase" yaml:"-"`
}

// BrowserConfig holds settings for the browser process. Whether it runs
// headless is an automation setting and is resolved per run.
type BrowserConfig struct {
	ExecPath       string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	Locale         string        `mapstructure:"locale" yaml:"locale"`
	Timezone       string        `mapstructure:"timezone" yaml:"timezone"`
	ViewportWidth  int64         `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int64         `mapstructure:"viewport_height" yaml:"viewport_height"`
	Stealth        bool          `mapstructure:"stealth" yaml:"stealth"`
	KeystrokeDelay time.Duration `mapstructure:"keystroke_delay" yaml:"keystroke_delay"`
	LaunchTimeout  time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	Debug          bool          `mapstructure:"debug" yaml:"debug"`
}

// LoginSelectors locate the sign-in form controls.
type LoginSelectors struct {
	Email          string `mapstructure:"email" yaml:"email"`
	Continue       string `mapstructure:"continue" yaml:"continue"`
	Password       string `mapstructure:"password" yaml:"password"`
	RememberMe     string `mapstructure:"remember_me" yaml:"remember_me"`
	SignIn         string `mapstructure:"sign_in" yaml:"sign_in"`
	OTP            string `mapstructure:"otp" yaml:"otp"`
	RememberDevice string `mapstructure:"remember_device" yaml:"remember_device"`
	OTPSubmit      string `mapstructure:"otp_submit" yaml:"otp_submit"`
}

// LoginConfig tunes the login flow.
type LoginConfig struct {
	Selectors LoginSelectors `mapstructure:"selectors" yaml:"selectors"`
	// CaptchaSelectors mark a challenge page. Any visible match blocks the run.
	CaptchaSelectors []string `mapstructure:"captcha_selectors" yaml:"captcha_selectors"`
	// LandmarkSelectors are only rendered for an authenticated session.
	LandmarkSelectors []string `mapstructure:"landmark_selectors" yaml:"landmark_selectors"`
	// FailurePhrases and TwoFactorPhrases are matched case-insensitively
	// against the page text.
	FailurePhrases   []string      `mapstructure:"failure_phrases" yaml:"failure_phrases"`
	TwoFactorPhrases []string      `mapstructure:"two_factor_phrases" yaml:"two_factor_phrases"`
	FieldWait        time.Duration `mapstructure:"field_wait" yaml:"field_wait"`
	NavigationWait   time.Duration `mapstructure:"navigation_wait" yaml:"navigation_wait"`
	Settle           time.Duration `mapstructure:"settle" yaml:"settle"`
	Poll             time.Duration `mapstructure:"poll" yaml:"poll"`
}

// NavigatorConfig tunes brand navigation.
type NavigatorConfig struct {
	Concurrency  int           `mapstructure:"concurrency" yaml:"concurrency"`
	LandmarkWait time.Duration `mapstructure:"landmark_wait" yaml:"landmark_wait"`
	Settle       time.Duration `mapstructure:"settle" yaml:"settle"`
}

// DebugConfig controls the per run debug artifact.
type DebugConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	ArtifactDir string `mapstructure:"artifact_dir" yaml:"artifact_dir"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
// The automation.* keys deliberately have none; see Overrides.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "brandpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.query_timeout", "30s")

	// -- Vault --
	v.SetDefault("vault.passphrase", "")

	// -- Browser --
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/Los_Angeles")
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.keystroke_delay", "60ms")
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.debug", false)

	// -- Login --
	v.SetDefault("login.selectors.email", "#ap_email")
	v.SetDefault("login.selectors.continue", "#continue")
	v.SetDefault("login.selectors.password", "#ap_password")
	v.SetDefault("login.selectors.remember_me", "input[name='rememberMe']")
	v.SetDefault("login.selectors.sign_in", "#signInSubmit")
	v.SetDefault("login.selectors.otp", "#auth-mfa-otpcode")
	v.SetDefault("login.selectors.remember_device", "#auth-mfa-remember-device")
	v.SetDefault("login.selectors.otp_submit", "#auth-signin-button")
	v.SetDefault("login.captcha_selectors", []string{
		"#auth-captcha-image",
		"#captchacharacters",
		"form[action*='validateCaptcha']",
	})
	v.SetDefault("login.landmark_selectors", []string{
		"#sc-navbar-container",
		"#sc-top-nav",
	})
	v.SetDefault("login.failure_phrases", []string{
		"your password is incorrect",
		"we cannot find an account with that email address",
		"the one time password (otp) you entered is not valid",
		"there was a problem",
	})
	v.SetDefault("login.two_factor_phrases", []string{
		"two-step verification",
		"enter the otp from the authenticator app",
		"authentication code",
	})
	v.SetDefault("login.field_wait", "15s")
	v.SetDefault("login.navigation_wait", "30s")
	v.SetDefault("login.settle", "2s")
	v.SetDefault("login.poll", "250ms")

	// -- Navigator --
	v.SetDefault("navigator.concurrency", 1)
	v.SetDefault("navigator.landmark_wait", "30s")
	v.SetDefault("navigator.settle", "2s")

	// -- Debug --
	v.SetDefault("debug.enabled", true)
	v.SetDefault("debug.artifact_dir", "~/.brandpilot/runs")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets come from the environment only.
	_ = v.BindEnv("vault.passphrase", PassphraseEnv)
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values. Required-ness of the
// database URL and the passphrase depends on the command, so it is checked
// where they are used.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LoggerCfg.Level); err != nil {
		return fmt.Errorf("logger.level: %w", err)
	}
	if f := c.LoggerCfg.Format; f != "console" && f != "json" {
		return fmt.Errorf("logger.format must be console or json, got %q", f)
	}
	if c.NavigatorCfg.Concurrency <= 0 {
		return fmt.Errorf("navigator.concurrency must be a positive integer")
	}
	if c.BrowserCfg.KeystrokeDelay < 0 {
		return fmt.Errorf("browser.keystroke_delay must not be negative")
	}
	if err := c.LoginCfg.Validate(); err != nil {
		return fmt.Errorf("login configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the login selectors and wait bounds.
func (l *LoginConfig) Validate() error {
	s := l.Selectors
	if s.Email == "" || s.Password == "" || s.SignIn == "" || s.OTP == "" {
		return fmt.Errorf("selectors.email, selectors.password, selectors.sign_in, and selectors.otp are required")
	}
	if len(l.LandmarkSelectors) == 0 {
		return fmt.Errorf("landmark_selectors must not be empty")
	}
	if l.FieldWait <= 0 || l.NavigationWait <= 0 {
		return fmt.Errorf("field_wait and navigation_wait must be positive durations")
	}
	if l.Poll <= 0 {
		return fmt.Errorf("poll must be a positive duration")
	}
	if l.Settle < 0 {
		return fmt.Errorf("settle must not be negative")
	}
	return nil
}

var automationKeys = []string{"automation.headless", "automation.timeout_ms", "automation.start_url"}

// Overrides reads the automation.* keys that were explicitly supplied by a
// flag, an environment variable, or the config file. Keys never set stay nil
// so the resolver can fall back to stored settings.
func Overrides(v *viper.Viper) schemas.Overrides {
	for _, key := range automationKeys {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	var o schemas.Overrides
	if v.IsSet("automation.headless") {
		h := v.GetBool("automation.headless")
		o.Headless = &h
	}
	if v.IsSet("automation.timeout_ms") {
		t := v.GetInt("automation.timeout_ms")
		o.TimeoutMs = &t
	}
	if v.IsSet("automation.start_url") {
		if u := strings.TrimSpace(v.GetString("automation.start_url")); u != "" {
			o.StartURL = &u
		}
	}
	return o
}
