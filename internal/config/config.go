package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from env / config file.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Azure    AzureConfig    `mapstructure:"azure"`
	Export   ExportConfig   `mapstructure:"export"`
	Storage  StorageConfig  `mapstructure:"storage"`
	S3       S3Config       `mapstructure:"s3"`
	Database DatabaseConfig `mapstructure:"database"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`      // development | production
	LogFile string `mapstructure:"log_file"` // optional, in addition to stdout
	Version string `mapstructure:"version"`
}

// AzureConfig describes the service principal and the management API it reads.
type AzureConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	// AuthorityHost is the identity provider; the token endpoint is
	// <host>/<tenant>/oauth2/v2.0/token.
	AuthorityHost string `mapstructure:"authority_host"`
	// Resource is the scope requested for the management API.
	Resource   string `mapstructure:"resource"`
	BaseURL    string `mapstructure:"base_url"`
	APIVersion string `mapstructure:"api_version"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Page requests per second; 0 disables pacing.
	RateLimit float64 `mapstructure:"rate_limit"`

	EventChannels    string `mapstructure:"event_channels"`
	ResourceProvider string `mapstructure:"resource_provider"`
}

type ExportConfig struct {
	Days       int    `mapstructure:"days"`
	OutputPath string `mapstructure:"output_path"`
	// Strict turns API, transport and storage failures into a non-zero exit.
	Strict bool `mapstructure:"strict"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "none", "fs", "s3", "multi"
	FSRoot  string `mapstructure:"fs_root"` // Root directory for filesystem
}

// S3Config holds credentials for an S3-compatible provider used to archive
// finished exports.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// ForcePathStyle must be true for Garage / MinIO
	ForcePathStyle bool `mapstructure:"force_path_style"`
}

// DatabaseConfig configures the optional run ledger. An empty DSN disables it.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// legacyEnv maps config keys to the variable names older deployments export.
var legacyEnv = map[string]string{
	"azure.tenant_id":     "TENANT_NAME",
	"azure.client_id":     "CLIENT_ID",
	"azure.client_secret": "CLIENT_SECRET",
	"export.days":         "DAYS",
}

// Load reads configuration from environment variables and optional config file.
// Environment variable prefix: ACTIVITYLOGS_
// Example: ACTIVITYLOGS_EXPORT_DAYS=7.
func Load() (*Config, error) {
	v := viper.New()

	// ---------- defaults ----------
	v.SetDefault("app.name", "activitylogs")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_file", "")
	v.SetDefault("app.version", "0.1.0")

	v.SetDefault("azure.tenant_id", "")
	v.SetDefault("azure.client_id", "")
	v.SetDefault("azure.client_secret", "")
	v.SetDefault("azure.authority_host", "https://login.microsoftonline.com")
	v.SetDefault("azure.resource", "https://management.core.windows.net//.default")
	v.SetDefault("azure.base_url", "https://management.azure.com")
	v.SetDefault("azure.api_version", "2015-04-01")
	v.SetDefault("azure.request_timeout", "30s")
	v.SetDefault("azure.rate_limit", 0)
	v.SetDefault("azure.event_channels", "Admin,Operation")
	v.SetDefault("azure.resource_provider", "")

	v.SetDefault("export.days", 1)
	v.SetDefault("export.output_path", "logs.json")
	v.SetDefault("export.strict", false)

	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.fs_root", "./data/exports")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", true)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// ---------- config file (optional) ----------
	v.SetConfigName("activitylogs")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/activitylogs")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	// ---------- env vars ----------
	v.SetEnvPrefix("ACTIVITYLOGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "ACTIVITYLOGS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}

// Validate reports missing credentials, a negative day window or an empty
// channel filter.
func (c *Config) Validate() error {
	var missing []string
	if c.Azure.TenantID == "" {
		missing = append(missing, "azure.tenant_id")
	}
	if c.Azure.ClientID == "" {
		missing = append(missing, "azure.client_id")
	}
	if c.Azure.ClientSecret == "" {
		missing = append(missing, "azure.client_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	if c.Export.Days < 0 {
		return fmt.Errorf("config: export.days must be >= 0 (got %d)", c.Export.Days)
	}
	if c.Export.OutputPath == "" {
		return fmt.Errorf("config: export.output_path is empty")
	}
	if strings.TrimSpace(c.Azure.EventChannels) == "" {
		return fmt.Errorf("config: azure.event_channels is empty")
	}
	return nil
}
