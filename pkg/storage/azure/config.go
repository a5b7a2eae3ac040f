// Package azure implements the storage client for Azure Blob Storage.
package azure

// Config configures an Azure Blob Storage client.
//
// Credential selection (exactly one variant, chosen at construction):
//  1. AccountKey - shared-key authorization
//  2. SASToken - pre-signed shared access signature
//  3. UseDefaultCredential - Azure AD via the default credential chain
//  4. none of the above - anonymous access (public containers)
//
// AccountKey and SASToken are mutually exclusive, and UseDefaultCredential
// is mutually exclusive with both. Invalid combinations are rejected by
// Validate before any connection is opened.
type Config struct {
	// AccountName is the storage account name (required).
	AccountName string

	// Container is the blob container name (required).
	Container string

	// AccountKey is the shared access key for the account.
	AccountKey string

	// SASToken is a shared access signature, with or without the
	// leading '?'.
	SASToken string

	// UseDefaultCredential selects Azure AD authentication via the
	// default credential chain (environment, workload identity,
	// managed identity, CLI).
	UseDefaultCredential bool

	// Host overrides the full endpoint authority, for Azurite and
	// sovereign-cloud deployments. Example: http://127.0.0.1:10000/devstoreaccount1
	Host string

	// EndpointSuffix overrides the DNS suffix of the blob endpoint.
	// Defaults to core.windows.net.
	EndpointSuffix string

	// MaxResults is the default page size for List operations.
	// Zero uses the service default (5000). Values over 5000 are clamped.
	MaxResults int
}

// DefaultEndpointSuffix is the DNS suffix for the public Azure cloud.
const DefaultEndpointSuffix = "core.windows.net"

// DefaultMaxResults is the default page size for List operations.
const DefaultMaxResults = 5000

// MaxAllowedResults is the maximum page size accepted by the service.
const MaxAllowedResults = 5000

// Validate checks that required configuration is present and that the
// credential variants are mutually exclusive.
func (c *Config) Validate() error {
	if c.AccountName == "" {
		return &ConfigError{Field: "AccountName", Message: "account name is required"}
	}
	if c.Container == "" {
		return &ConfigError{Field: "Container", Message: "container name is required"}
	}
	if c.AccountKey != "" && c.SASToken != "" {
		return &ConfigError{
			Field:   "AccountKey/SASToken",
			Message: "account key and SAS token are mutually exclusive",
		}
	}
	if c.UseDefaultCredential && (c.AccountKey != "" || c.SASToken != "") {
		return &ConfigError{
			Field:   "UseDefaultCredential",
			Message: "Azure AD credential is mutually exclusive with account key and SAS token",
		}
	}
	return nil
}

// Endpoint returns the public blob endpoint for the account, without a
// trailing slash.
func (c *Config) Endpoint() string {
	if c.Host != "" {
		return trimTrailingSlash(c.Host)
	}
	suffix := c.EndpointSuffix
	if suffix == "" {
		suffix = DefaultEndpointSuffix
	}
	return "https://" + c.AccountName + ".blob." + suffix
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "azure config: " + e.Field + ": " + e.Message
}
