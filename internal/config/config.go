// Package config loads and validates the stratus configuration file:
// server settings, catalog endpoint, backend integrations and discovery
// sources.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fathomlabs/stratus/pkg/storage"
)

// Config is the root configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	Integrations IntegrationsConfig `mapstructure:"integrations"`
	Sources      []SourceConfig     `mapstructure:"sources"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CatalogConfig configures the downstream mutation sink.
// An empty endpoint means mutations are logged and dropped.
type CatalogConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Token    string `mapstructure:"token"`
}

// IntegrationsConfig holds per-backend account credentials.
type IntegrationsConfig struct {
	AzureBlob []AzureIntegration `mapstructure:"azureBlob"`
	S3        []S3Integration    `mapstructure:"s3"`
}

// AzureIntegration identifies one Azure storage account.
//
// At most one of AccountKey and SASToken may be set;
// UseDefaultCredential is mutually exclusive with both. Violations are
// rejected at load time, never at refresh time.
type AzureIntegration struct {
	AccountName          string `mapstructure:"accountName"`
	AccountKey           string `mapstructure:"accountKey"`
	SASToken             string `mapstructure:"sasToken"`
	UseDefaultCredential bool   `mapstructure:"useDefaultCredential"`
	Host                 string `mapstructure:"host"`
	EndpointSuffix       string `mapstructure:"endpointSuffix"`
}

// S3Integration identifies one S3 endpoint identity.
type S3Integration struct {
	Name            string `mapstructure:"name"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"accessKeyId"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
}

// ScheduleConfig is the refresh cadence for one source.
type ScheduleConfig struct {
	Every   time.Duration `mapstructure:"every"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FilterConfig restricts which discovered keys become locations.
type FilterConfig struct {
	Includes []string `mapstructure:"includes"`
	Excludes []string `mapstructure:"excludes"`
}

// SourceConfig is one account+container pairing tracked as an
// independent discovery unit. Immutable after load.
type SourceConfig struct {
	ID          string         `mapstructure:"id"`
	Kind        string         `mapstructure:"kind"`
	AccountName string         `mapstructure:"accountName"`
	Container   string         `mapstructure:"container"`
	Prefix      string         `mapstructure:"prefix"`
	PageSize    int            `mapstructure:"pageSize"`
	RateLimit   float64        `mapstructure:"rateLimit"`
	Schedule    ScheduleConfig `mapstructure:"schedule"`
	Filters     FilterConfig   `mapstructure:"filters"`
}

// Defaults applied to optional fields.
const (
	DefaultServerHost     = "127.0.0.1"
	DefaultServerPort     = 8080
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultRefreshEvery   = 10 * time.Minute
	DefaultRefreshTimeout = 2 * time.Minute
)

// ErrUnknownAccount indicates a host or account name that no configured
// integration covers.
var ErrUnknownAccount = errors.New("no integration configured for account")

// ApplyDefaults fills in optional fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	for i := range c.Sources {
		if c.Sources[i].Kind == "" {
			c.Sources[i].Kind = string(storage.BackendAzureBlob)
		}
		if c.Sources[i].Schedule.Every == 0 {
			c.Sources[i].Schedule.Every = DefaultRefreshEvery
		}
		if c.Sources[i].Schedule.Timeout == 0 {
			c.Sources[i].Schedule.Timeout = DefaultRefreshTimeout
		}
	}
}

// Validate checks cross-field invariants: credential exclusivity per
// integration, unique source IDs, and that every source references a
// known integration.
func (c *Config) Validate() error {
	for i := range c.Integrations.AzureBlob {
		integ := &c.Integrations.AzureBlob[i]
		if integ.AccountName == "" {
			return errors.New("config: integrations.azureBlob: accountName is required")
		}
		if integ.AccountKey != "" && integ.SASToken != "" {
			return fmt.Errorf("config: integration %s: accountKey and sasToken are mutually exclusive", integ.AccountName)
		}
		if integ.UseDefaultCredential && (integ.AccountKey != "" || integ.SASToken != "") {
			return fmt.Errorf("config: integration %s: useDefaultCredential is mutually exclusive with accountKey and sasToken", integ.AccountName)
		}
	}
	for i := range c.Integrations.S3 {
		integ := &c.Integrations.S3[i]
		if integ.Name == "" {
			return errors.New("config: integrations.s3: name is required")
		}
		if (integ.AccessKeyID != "") != (integ.SecretAccessKey != "") {
			return fmt.Errorf("config: integration %s: accessKeyId and secretAccessKey must be provided together", integ.Name)
		}
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.ID == "" {
			return errors.New("config: sources: id is required")
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("config: duplicate source id %s", src.ID)
		}
		seen[src.ID] = struct{}{}

		if src.Container == "" {
			return fmt.Errorf("config: source %s: container is required", src.ID)
		}

		switch storage.Backend(src.Kind) {
		case storage.BackendAzureBlob:
			if _, ok := c.AzureIntegration(src.AccountName); !ok {
				return fmt.Errorf("config: source %s: %w: %s", src.ID, ErrUnknownAccount, src.AccountName)
			}
		case storage.BackendS3:
			if _, ok := c.S3Integration(src.AccountName); !ok {
				return fmt.Errorf("config: source %s: %w: %s", src.ID, ErrUnknownAccount, src.AccountName)
			}
		default:
			return fmt.Errorf("config: source %s: unsupported kind %q", src.ID, src.Kind)
		}
	}
	return nil
}

// AzureIntegration resolves an Azure integration by account name.
func (c *Config) AzureIntegration(accountName string) (*AzureIntegration, bool) {
	for i := range c.Integrations.AzureBlob {
		if c.Integrations.AzureBlob[i].AccountName == accountName {
			return &c.Integrations.AzureBlob[i], true
		}
	}
	return nil, false
}

// S3Integration resolves an S3 integration by name.
func (c *Config) S3Integration(name string) (*S3Integration, bool) {
	for i := range c.Integrations.S3 {
		if c.Integrations.S3[i].Name == name {
			return &c.Integrations.S3[i], true
		}
	}
	return nil, false
}
