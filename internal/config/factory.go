package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/fathomlabs/stratus/pkg/objecturl"
	"github.com/fathomlabs/stratus/pkg/storage"
	"github.com/fathomlabs/stratus/pkg/storage/azure"
	"github.com/fathomlabs/stratus/pkg/storage/s3"
)

// Factory resolves backend clients from the configured integrations.
// It implements storage.ClientFactory for the reader, and constructs
// per-source clients for discovery providers.
type Factory struct {
	cfg *Config
}

var _ storage.ClientFactory = (*Factory)(nil)

// NewFactory creates a factory over a validated configuration.
func NewFactory(cfg *Config) *Factory {
	return &Factory{cfg: cfg}
}

// Client resolves the integration owning host and opens a client for
// the given container. Fails with ErrUnknownAccount when no integration
// matches - the caller cannot read from accounts it has no identity for.
func (f *Factory) Client(ctx context.Context, host, container string) (storage.Client, error) {
	if integ := f.azureForHost(host); integ != nil {
		return azureClient(integ, container)
	}
	if integ := f.s3ForHost(host); integ != nil {
		return s3Client(ctx, integ, container)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, host)
}

// SourceClient opens the backend client for a configured source.
func (f *Factory) SourceClient(ctx context.Context, src SourceConfig) (storage.Client, error) {
	switch storage.Backend(src.Kind) {
	case storage.BackendAzureBlob:
		integ, ok := f.cfg.AzureIntegration(src.AccountName)
		if !ok {
			return nil, fmt.Errorf("source %s: %w: %s", src.ID, ErrUnknownAccount, src.AccountName)
		}
		return azureClient(integ, src.Container)
	case storage.BackendS3:
		integ, ok := f.cfg.S3Integration(src.AccountName)
		if !ok {
			return nil, fmt.Errorf("source %s: %w: %s", src.ID, ErrUnknownAccount, src.AccountName)
		}
		return s3Client(ctx, integ, src.Container)
	default:
		return nil, fmt.Errorf("source %s: unsupported kind %q", src.ID, src.Kind)
	}
}

// azureForHost matches an Azure integration by endpoint authority:
// an explicit host override, the derived blob endpoint, or the account
// name as the first DNS label.
func (f *Factory) azureForHost(host string) *AzureIntegration {
	account := objecturl.AccountFromHost(host)
	for i := range f.cfg.Integrations.AzureBlob {
		integ := &f.cfg.Integrations.AzureBlob[i]
		if integ.Host != "" && hostOf(integ.Host) == host {
			return integ
		}
		suffix := integ.EndpointSuffix
		if suffix == "" {
			suffix = azure.DefaultEndpointSuffix
		}
		if host == integ.AccountName+".blob."+suffix {
			return integ
		}
		if integ.Host == "" && account == integ.AccountName {
			return integ
		}
	}
	return nil
}

// s3ForHost matches an S3 integration by endpoint authority. Default
// AWS hosts (s3.<region>.amazonaws.com) match an integration without a
// custom endpoint.
func (f *Factory) s3ForHost(host string) *S3Integration {
	for i := range f.cfg.Integrations.S3 {
		integ := &f.cfg.Integrations.S3[i]
		if integ.Endpoint != "" {
			if hostOf(integ.Endpoint) == host {
				return integ
			}
			continue
		}
		if strings.HasPrefix(host, "s3.") && strings.HasSuffix(host, ".amazonaws.com") {
			return integ
		}
	}
	return nil
}

func azureClient(integ *AzureIntegration, container string) (storage.Client, error) {
	return azure.New(azure.Config{
		AccountName:          integ.AccountName,
		Container:            container,
		AccountKey:           integ.AccountKey,
		SASToken:             integ.SASToken,
		UseDefaultCredential: integ.UseDefaultCredential,
		Host:                 integ.Host,
		EndpointSuffix:       integ.EndpointSuffix,
	})
}

func s3Client(ctx context.Context, integ *S3Integration, container string) (storage.Client, error) {
	return s3.New(ctx, s3.Config{
		Bucket:          container,
		Region:          integ.Region,
		Endpoint:        integ.Endpoint,
		Profile:         integ.Profile,
		AccessKeyID:     integ.AccessKeyID,
		SecretAccessKey: integ.SecretAccessKey,
		// Path-style keeps the bucket in the URL path so locations
		// round-trip through the shared URL parser.
		ForcePathStyle: true,
	})
}

// hostOf extracts the authority from an endpoint that may carry a scheme.
func hostOf(endpoint string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		s = s[:idx]
	}
	return s
}
