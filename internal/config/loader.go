package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig            `mapstructure:"server"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Logger        LoggerConfig            `mapstructure:"logger"`
	Auth          AuthConfig              `mapstructure:"auth"`
	Features      FeaturesConfig          `mapstructure:"features"`
	Identity      IdentityConfig          `mapstructure:"identity"`
	Email         EmailConfig             `mapstructure:"email"`
	Tokens        TokenConfig             `mapstructure:"tokens"`
	Notifications NotificationsConfig     `mapstructure:"notifications"`
	Tasks         map[string]TaskConfig   `mapstructure:"tasks"`
	Actions       map[string]ActionConfig `mapstructure:"actions"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN renders the connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "mysql" {
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

type AuthConfig struct {
	JWTSecret      string   `mapstructure:"jwt_secret"`
	JWTIssuer      string   `mapstructure:"jwt_issuer"`
	AdminRoles     []string `mapstructure:"admin_roles"`
	ManagerRoles   []string `mapstructure:"manager_roles"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type FeaturesConfig struct {
	EnableLocks          bool          `mapstructure:"enable_locks"`
	RequestIDHeader      string        `mapstructure:"request_id_header"`
	EnableRequestLogging bool          `mapstructure:"enable_request_logging"`
	EnableMetrics        bool          `mapstructure:"enable_metrics"`
	PublicRateLimit      int           `mapstructure:"public_rate_limit"`
	PublicRateWindow     time.Duration `mapstructure:"public_rate_window"`
}

type IdentityConfig struct {
	Driver        string        `mapstructure:"driver"`
	DefaultDomain string        `mapstructure:"default_domain"`
	PasswordCost  int           `mapstructure:"password_cost"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

type EmailConfig struct {
	Backend     string `mapstructure:"backend"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	From        string `mapstructure:"from"`
	TemplateDir string `mapstructure:"template_dir"`
}

type TokenConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Length     int           `mapstructure:"length"`
}

type NotificationsConfig struct {
	Standard NotificationTarget `mapstructure:"standard"`
	Error    NotificationTarget `mapstructure:"error"`
}

type NotificationTarget struct {
	Emails   []string `mapstructure:"emails"`
	Reply    string   `mapstructure:"reply"`
	Subject  string   `mapstructure:"subject"`
	Template string   `mapstructure:"template"`
}

// TaskConfig describes one task type: which actions it runs and how it is approved.
type TaskConfig struct {
	Actions       []string      `mapstructure:"actions"`
	AutoApprove   bool          `mapstructure:"auto_approve"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	ResponseNotes []string      `mapstructure:"response_notes"`
	Emails        TaskEmails    `mapstructure:"emails"`
}

type TaskEmails struct {
	Initial   *EmailTemplate `mapstructure:"initial"`
	Token     *EmailTemplate `mapstructure:"token"`
	Completed *EmailTemplate `mapstructure:"completed"`
}

type EmailTemplate struct {
	Subject  string `mapstructure:"subject"`
	Reply    string `mapstructure:"reply"`
	Template string `mapstructure:"template"`
}

// ActionConfig is the per-action role policy and defaults.
type ActionConfig struct {
	AllowedRoles     []string `mapstructure:"allowed_roles"`
	BlacklistedRoles []string `mapstructure:"blacklisted_roles"`
	DefaultRoles     []string `mapstructure:"default_roles"`
}

// TokenTTL resolves the token lifetime for a task type.
func (c *Config) TokenTTL(taskType string) time.Duration {
	if t, ok := c.Tasks[taskType]; ok && t.TokenTTL > 0 {
		return t.TokenTTL
	}
	return c.Tokens.DefaultTTL
}

// Load reads path (and an optional .env next to the working directory) on top of Default().
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("STACKGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MaxTokenLength is the width of the tokens.token column.
const MaxTokenLength = 64

// Validate rejects settings the storage layer cannot honour.
func (c *Config) Validate() error {
	if c.Tokens.Length > MaxTokenLength {
		return fmt.Errorf("tokens.length %d exceeds the maximum of %d", c.Tokens.Length, MaxTokenLength)
	}
	return nil
}
