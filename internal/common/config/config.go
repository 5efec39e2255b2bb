// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Camunda       CamundaConfig       `mapstructure:"camunda"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Directory     DirectoryConfig     `mapstructure:"directory"`
	Broadcast     BroadcastConfig     `mapstructure:"broadcast"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig configures the single HTTP entry point.
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	BaseURL      string `mapstructure:"base_url"`      // public URL embedded in action links
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
}

type CamundaConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	BrokerAddress      string `mapstructure:"broker_address"`
	AdmissionProcessID string `mapstructure:"admission_process_id"`
	MaxJobsActive      int    `mapstructure:"max_jobs_active"`
	Timeout            int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout     int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DirectoryConfig selects where active franchises are looked up.
type DirectoryConfig struct {
	Backend  string `mapstructure:"backend"`   // "postgres" or "elasticsearch"
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds, 0 disables the redis cache
}

// BroadcastConfig holds the quota and pricing knobs of the broadcast core.
type BroadcastConfig struct {
	DefaultQuota        int            `mapstructure:"default_quota"`
	CapToRemainingSlots bool           `mapstructure:"cap_to_remaining_slots"`
	SendRatePerSecond   int            `mapstructure:"send_rate_per_second"`
	Fees                FeeTableConfig `mapstructure:"fees"`
}

// FeeTableConfig overrides the built-in referral fee amounts (yen).
type FeeTableConfig struct {
	SingleRecipient int `mapstructure:"single_recipient"`
	Standard        int `mapstructure:"standard"`
	HighRise        int `mapstructure:"high_rise"`
}

// NotificationConfig holds outbound email/alert settings.
type NotificationConfig struct {
	AWSRegion      string   `mapstructure:"aws_region"`
	FromEmail      string   `mapstructure:"from_email"`
	AdminEmails    []string `mapstructure:"admin_emails"`
	AdminTopicARN  string   `mapstructure:"admin_topic_arn"`
	ChatWebhookURL string   `mapstructure:"chat_webhook_url"`
	Timeout        int      `mapstructure:"timeout"` // milliseconds
}

// SchedulerConfig controls background maintenance jobs.
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CloseRoundsSpec string `mapstructure:"close_rounds_spec"`
	RoundTTL        string `mapstructure:"round_ttl"` // Go duration string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// RoundTTLDuration parses scheduler.round_ttl, falling back to one week.
func (s SchedulerConfig) RoundTTLDuration() time.Duration {
	d, err := time.ParseDuration(s.RoundTTL)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}
