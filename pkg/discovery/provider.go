// Package discovery runs the periodic discovery-and-reconciliation cycle
// that keeps a downstream catalog in sync with an object-storage
// container.
//
// Each configured source gets one Provider. A refresh cycle lists every
// object in the source's container, maps each key to a location entity
// and publishes the complete set as one full mutation. The sink performs
// the diff; the provider never compares against previous state.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathomlabs/stratus/pkg/catalog"
	"github.com/fathomlabs/stratus/pkg/match"
	"github.com/fathomlabs/stratus/pkg/storage"
)

// Provider lifecycle errors.
var (
	// ErrNotInitialized indicates Refresh was invoked before Connect.
	ErrNotInitialized = errors.New("provider is not connected to a catalog sink")

	// ErrAlreadyConnected indicates Connect was invoked twice.
	ErrAlreadyConnected = errors.New("provider is already connected")
)

// ClientFunc lazily constructs the backend client for a source.
// Invoked once, on the first refresh.
type ClientFunc func(ctx context.Context) (storage.Client, error)

// Config configures a discovery provider.
type Config struct {
	// ID is the stable source identifier from configuration.
	ID string

	// Kind is the backend kind, part of the provider's public name.
	Kind storage.Backend

	// Prefix restricts discovery to keys under this prefix.
	// Empty discovers the whole container.
	Prefix string

	// PageSize is the listing page size. Zero uses the backend default.
	PageSize int

	// RateLimit is the maximum listing pages fetched per second.
	// Zero means unlimited.
	RateLimit float64
}

// Provider owns the refresh cycle for one configured source.
//
// A Provider is not re-entrant: the scheduler collaborator guarantees at
// most one Refresh per provider is in flight. Internal state (the lazily
// constructed backend client, the bound sink) is still mutex-guarded so
// Connect and the status surface stay safe alongside a running refresh.
type Provider struct {
	cfg       Config
	newClient ClientFunc
	matcher   *match.Matcher
	logger    *zap.Logger
	limiter   *rate.Limiter

	mu     sync.Mutex
	sink   catalog.Sink
	client storage.Client
}

// New creates a provider for one source. The backend connection is not
// opened here - it is constructed on the first refresh.
func New(cfg Config, newClient ClientFunc, logger *zap.Logger) (*Provider, error) {
	if cfg.ID == "" {
		return nil, errors.New("discovery: source id is required")
	}
	if cfg.Kind == "" {
		return nil, errors.New("discovery: backend kind is required")
	}
	if newClient == nil {
		return nil, errors.New("discovery: client constructor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Provider{
		cfg:       cfg,
		newClient: newClient,
		logger:    logger.With(zap.String("provider", ProviderName(cfg.Kind, cfg.ID))),
	}
	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return p, nil
}

// WithMatcher sets an optional key filter applied between listing and
// mapping. Returns the provider for chaining.
func (p *Provider) WithMatcher(m *match.Matcher) *Provider {
	p.matcher = m
	return p
}

// ProviderName derives the public source name. The same derivation feeds
// the scheduler task key and the mutation source key, so a mutation
// always lands against the same downstream ownership key across restarts.
func ProviderName(kind storage.Backend, id string) string {
	return fmt.Sprintf("%s-provider:%s", kind, id)
}

// Name returns the provider's public name.
func (p *Provider) Name() string {
	return ProviderName(p.cfg.Kind, p.cfg.ID)
}

// TaskID returns the scheduler task key for this provider's refresh.
func (p *Provider) TaskID() string {
	return p.Name() + ":refresh"
}

// Connect binds the single downstream mutation sink this provider
// publishes to. Must be called exactly once before any refresh runs.
func (p *Provider) Connect(sink catalog.Sink) error {
	if sink == nil {
		return errors.New("discovery: sink is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sink != nil {
		return ErrAlreadyConnected
	}
	p.sink = sink
	return nil
}

// Refresh performs one full discovery cycle: drain the listing, map
// every key, publish one full mutation.
//
// Any failure aborts the cycle before publication - the sink's previous
// state for this source is left untouched. A failed cycle never poisons
// future cycles: the next Refresh starts from scratch.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink == nil {
		return ErrNotInitialized
	}

	client, err := p.connection(ctx)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", p.Name(), err)
	}

	// Listing fully completes before mapping, and mapping before
	// publishing. Partial listings are never published.
	objects, err := p.drainListing(ctx, client)
	if err != nil {
		return fmt.Errorf("refresh %s: list: %w", p.Name(), err)
	}
	discovered := len(objects)

	entities := make([]catalog.LocationEntity, 0, len(objects))
	for _, obj := range objects {
		if p.matcher != nil && !p.matcher.Match(obj.Key) {
			continue
		}
		entities = append(entities, Location(client.Endpoint(), client.Container(), obj.Key))
	}

	mutation := &catalog.Mutation{
		Type:      catalog.MutationFull,
		SourceKey: p.Name(),
		Entities:  entities,
	}
	if err := sink.ApplyMutation(ctx, mutation); err != nil {
		return fmt.Errorf("refresh %s: publish: %w", p.Name(), err)
	}

	p.logger.Info("Refresh completed",
		zap.String("container", client.Container()),
		zap.Int("discovered", discovered),
		zap.Int("published", len(entities)))
	return nil
}

// RunRefresh is the scheduler-facing refresh entry point. A failed
// cycle is logged here with provider context and returned, so the
// scheduler's failure counters and last-error state reflect it. The
// scheduler contains the error; the next tick starts clean.
func (p *Provider) RunRefresh(ctx context.Context) error {
	err := p.Refresh(ctx)
	if err != nil {
		p.logger.Error("Refresh failed", zap.Error(err))
	}
	return err
}

// connection returns the backend client, constructing it on first use.
// The only mutation pattern is lazy init-once under the mutex.
func (p *Provider) connection(ctx context.Context) (storage.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect backend: %w", err)
	}
	p.client = client
	return client, nil
}

// drainListing collects every object in the container across all pages,
// in listing order.
func (p *Provider) drainListing(ctx context.Context, client storage.Client) ([]storage.ObjectSummary, error) {
	var objects []storage.ObjectSummary
	var marker string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		page, err := client.List(ctx, storage.ListOptions{
			Prefix:     p.cfg.Prefix,
			Marker:     marker,
			MaxResults: p.cfg.PageSize,
		})
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Objects...)
		if !page.IsTruncated || page.NextMarker == "" {
			return objects, nil
		}
		marker = page.NextMarker
	}
}

// Close releases the backend client, if one was ever constructed.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
