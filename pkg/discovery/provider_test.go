package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomlabs/stratus/pkg/catalog"
	"github.com/fathomlabs/stratus/pkg/match"
	"github.com/fathomlabs/stratus/pkg/storage"
)

// listClient implements storage.Client over a fixed object list.
type listClient struct {
	endpoint  string
	container string
	objects   []storage.ObjectSummary
	pageSize  int

	listErr   error
	listCalls atomic.Int64
	closed    bool
}

func (c *listClient) List(ctx context.Context, opts storage.ListOptions) (*storage.ListResult, error) {
	c.listCalls.Add(1)
	if c.listErr != nil {
		return nil, c.listErr
	}

	start := 0
	if opts.Marker != "" {
		for i, obj := range c.objects {
			if obj.Key == opts.Marker {
				start = i + 1
				break
			}
		}
	}

	pageSize := c.pageSize
	if opts.MaxResults > 0 && (pageSize <= 0 || opts.MaxResults < pageSize) {
		pageSize = opts.MaxResults
	}
	if pageSize <= 0 {
		pageSize = len(c.objects)
	}

	end := start + pageSize
	if end > len(c.objects) {
		end = len(c.objects)
	}

	result := &storage.ListResult{Objects: c.objects[start:end]}
	if end < len(c.objects) {
		result.IsTruncated = true
		result.NextMarker = c.objects[end-1].Key
	}
	return result, nil
}

func (c *listClient) Download(context.Context, string, storage.Conditions) (*storage.Download, error) {
	return nil, errors.New("not implemented")
}

func (c *listClient) Endpoint() string    { return c.endpoint }
func (c *listClient) AccountName() string { return "mystore" }
func (c *listClient) Container() string   { return c.container }
func (c *listClient) Close() error        { c.closed = true; return nil }

func objectList(keys ...string) []storage.ObjectSummary {
	objects := make([]storage.ObjectSummary, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, storage.ObjectSummary{Key: key, Size: 1})
	}
	return objects
}

func newTestProvider(t *testing.T, client *listClient, cfg Config) *Provider {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "primary"
	}
	if cfg.Kind == "" {
		cfg.Kind = storage.BackendAzureBlob
	}
	prov, err := New(cfg, func(context.Context) (storage.Client, error) {
		return client, nil
	}, nil)
	require.NoError(t, err)
	return prov
}

func TestNew_Validation(t *testing.T) {
	clientFn := func(context.Context) (storage.Client, error) { return &listClient{}, nil }

	tests := []struct {
		name string
		cfg  Config
		fn   ClientFunc
	}{
		{"missing id", Config{Kind: storage.BackendAzureBlob}, clientFn},
		{"missing kind", Config{ID: "a"}, clientFn},
		{"missing client fn", Config{ID: "a", Kind: storage.BackendAzureBlob}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.fn, nil)
			assert.Error(t, err)
		})
	}
}

func TestProviderName(t *testing.T) {
	tests := []struct {
		kind storage.Backend
		id   string
		want string
	}{
		{storage.BackendAzureBlob, "primary", "azure-blob-provider:primary"},
		{storage.BackendS3, "backup", "s3-provider:backup"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ProviderName(tt.kind, tt.id))
		})
	}
}

func TestProvider_NameAndTaskID(t *testing.T) {
	prov := newTestProvider(t, &listClient{}, Config{ID: "primary"})
	assert.Equal(t, "azure-blob-provider:primary", prov.Name())
	assert.Equal(t, "azure-blob-provider:primary:refresh", prov.TaskID())
}

func TestConnect_ExactlyOnce(t *testing.T) {
	prov := newTestProvider(t, &listClient{}, Config{})
	sink := catalog.NewMemorySink()

	require.NoError(t, prov.Connect(sink))
	assert.ErrorIs(t, prov.Connect(sink), ErrAlreadyConnected)
	assert.Error(t, prov.Connect(nil))
}

func TestRefresh_BeforeConnect(t *testing.T) {
	prov := newTestProvider(t, &listClient{}, Config{})
	assert.ErrorIs(t, prov.Refresh(context.Background()), ErrNotInitialized)
}

func TestRefresh_PublishesFullMutation(t *testing.T) {
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
		objects: objectList(
			"teams/backend/catalog-info.yaml",
			"teams/frontend/catalog-info.yaml",
		),
	}
	prov := newTestProvider(t, client, Config{})
	sink := catalog.NewMemorySink()
	require.NoError(t, prov.Connect(sink))

	require.NoError(t, prov.Refresh(context.Background()))

	entities, ok := sink.Entities("azure-blob-provider:primary")
	require.True(t, ok)
	require.Len(t, entities, 2)
	assert.Equal(t, catalog.LocationEntity{
		Type:     catalog.LocationTypeURL,
		Target:   "https://mystore.blob.core.windows.net/catalog/teams/backend/catalog-info.yaml",
		Presence: catalog.PresenceRequired,
	}, entities[0])
}

func TestRefresh_FullReplace(t *testing.T) {
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
		objects:   objectList("a.yaml", "b.yaml"),
	}
	prov := newTestProvider(t, client, Config{})
	sink := catalog.NewMemorySink()
	require.NoError(t, prov.Connect(sink))

	require.NoError(t, prov.Refresh(context.Background()))

	// The container shrank between refreshes.
	client.objects = objectList("b.yaml")
	require.NoError(t, prov.Refresh(context.Background()))

	entities, ok := sink.Entities("azure-blob-provider:primary")
	require.True(t, ok)
	require.Len(t, entities, 1)
	assert.Contains(t, entities[0].Target, "b.yaml")
}

func TestRefresh_EmptyContainerPublishesEmptySet(t *testing.T) {
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
	}
	prov := newTestProvider(t, client, Config{})
	sink := catalog.NewMemorySink()
	require.NoError(t, prov.Connect(sink))

	require.NoError(t, prov.Refresh(context.Background()))

	entities, ok := sink.Entities("azure-blob-provider:primary")
	require.True(t, ok, "an empty container is still a published state")
	assert.Empty(t, entities)
}

func TestRefresh_ListFailureLeavesSinkUntouched(t *testing.T) {
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
		objects:   objectList("a.yaml"),
	}
	prov := newTestProvider(t, client, Config{})
	sink := catalog.NewMemorySink()
	require.NoError(t, prov.Connect(sink))
	require.NoError(t, prov.Refresh(context.Background()))

	// A transient backend failure aborts the cycle before publication.
	client.listErr = &storage.StorageError{
		Op: "List", Backend: storage.BackendAzureBlob,
		Container: "catalog", Err: storage.ErrUnavailable,
	}
	client.objects = nil
	err := prov.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, storage.IsUnavailable(err))

	entities, ok := sink.Entities("azure-blob-provider:primary")
	require.True(t, ok)
	assert.Len(t, entities, 1, "previous state survives a failed cycle")

	// The failure does not poison the next cycle.
	client.listErr = nil
	client.objects = objectList("a.yaml", "new.yaml")
	require.NoError(t, prov.Refresh(context.Background()))

	entities, _ = sink.Entities("azure-blob-provider:primary")
	assert.Len(t, entities, 2)
}

// The scheduled entry point must surface the failure so the scheduler's
// run accounting (failure counters, last error) reflects it; a source
// that fails every cycle must not look healthy on the status surface.
func TestRunRefresh_ReportsFailure(t *testing.T) {
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
		listErr: &storage.StorageError{
			Op: "List", Backend: storage.BackendAzureBlob,
			Container: "catalog", Err: storage.ErrUnavailable,
		},
	}
	prov := newTestProvider(t, client, Config{})
	require.NoError(t, prov.Connect(catalog.NewMemorySink()))

	err := prov.RunRefresh(context.Background())
	require.Error(t, err)
	assert.True(t, storage.IsUnavailable(err))

	// The failure does not poison the next cycle.
	client.listErr = nil
	client.objects = objectList("a.yaml")
	assert.NoError(t, prov.RunRefresh(context.Background()))
}

func TestRefresh_PublishFailure(t *testing.T) {
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
		objects:   objectList("a.yaml"),
	}
	prov := newTestProvider(t, client, Config{})
	require.NoError(t, prov.Connect(failingSink{}))

	err := prov.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish")
}

type failingSink struct{}

func (failingSink) ApplyMutation(context.Context, *catalog.Mutation) error {
	return errors.New("catalog down")
}

func TestRefresh_DrainsAllPages(t *testing.T) {
	objects := make([]storage.ObjectSummary, 0, 23)
	for i := 0; i < 23; i++ {
		objects = append(objects, storage.ObjectSummary{Key: fmt.Sprintf("file-%02d.yaml", i)})
	}
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
		objects:   objects,
		pageSize:  5,
	}
	prov := newTestProvider(t, client, Config{})
	sink := catalog.NewMemorySink()
	require.NoError(t, prov.Connect(sink))

	require.NoError(t, prov.Refresh(context.Background()))

	entities, _ := sink.Entities("azure-blob-provider:primary")
	assert.Len(t, entities, 23)
	assert.Equal(t, int64(5), client.listCalls.Load())
}

func TestRefresh_AppliesMatcher(t *testing.T) {
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
		objects: objectList(
			"teams/backend/catalog-info.yaml",
			"teams/backend/readme.md",
			"archive/old/catalog-info.yaml",
		),
	}
	m, err := match.New(match.Config{
		Includes: []string{"**/catalog-info.yaml"},
		Excludes: []string{"archive/**"},
	})
	require.NoError(t, err)

	prov := newTestProvider(t, client, Config{}).WithMatcher(m)
	sink := catalog.NewMemorySink()
	require.NoError(t, prov.Connect(sink))

	require.NoError(t, prov.Refresh(context.Background()))

	entities, _ := sink.Entities("azure-blob-provider:primary")
	require.Len(t, entities, 1)
	assert.Contains(t, entities[0].Target, "teams/backend/catalog-info.yaml")
}

func TestRefresh_CancelledContext(t *testing.T) {
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
		objects:   objectList("a.yaml"),
	}
	prov := newTestProvider(t, client, Config{})
	require.NoError(t, prov.Connect(catalog.NewMemorySink()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := prov.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefresh_RateLimited(t *testing.T) {
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
		objects:   objectList("a.yaml", "b.yaml", "c.yaml"),
		pageSize:  1,
	}
	prov := newTestProvider(t, client, Config{RateLimit: 100})
	sink := catalog.NewMemorySink()
	require.NoError(t, prov.Connect(sink))

	start := time.Now()
	require.NoError(t, prov.Refresh(context.Background()))

	// Three pages at 100 pages/sec with burst 1: at least ~20ms elapsed.
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	entities, _ := sink.Entities("azure-blob-provider:primary")
	assert.Len(t, entities, 3)
}

func TestProvider_ClientConstructedOnce(t *testing.T) {
	var constructions atomic.Int64
	client := &listClient{
		endpoint:  "https://mystore.blob.core.windows.net",
		container: "catalog",
		objects:   objectList("a.yaml"),
	}
	prov, err := New(Config{ID: "primary", Kind: storage.BackendAzureBlob},
		func(context.Context) (storage.Client, error) {
			constructions.Add(1)
			return client, nil
		}, nil)
	require.NoError(t, err)
	require.NoError(t, prov.Connect(catalog.NewMemorySink()))

	require.NoError(t, prov.Refresh(context.Background()))
	require.NoError(t, prov.Refresh(context.Background()))
	assert.Equal(t, int64(1), constructions.Load())

	require.NoError(t, prov.Close())
	assert.True(t, client.closed)

	// Closed provider reconnects on the next refresh.
	require.NoError(t, prov.Refresh(context.Background()))
	assert.Equal(t, int64(2), constructions.Load())
}
