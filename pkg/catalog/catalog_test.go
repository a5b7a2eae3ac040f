package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullMutation(sourceKey string, targets ...string) *Mutation {
	entities := make([]LocationEntity, 0, len(targets))
	for _, target := range targets {
		entities = append(entities, LocationEntity{
			Type:     LocationTypeURL,
			Target:   target,
			Presence: PresenceRequired,
		})
	}
	return &Mutation{Type: MutationFull, SourceKey: sourceKey, Entities: entities}
}

func TestMemorySink_ReplaceSemantics(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	key := "azure-blob-provider:primary"

	require.NoError(t, sink.ApplyMutation(ctx, fullMutation(key,
		"https://a.blob.core.windows.net/c/one.yaml",
		"https://a.blob.core.windows.net/c/two.yaml",
	)))

	entities, ok := sink.Entities(key)
	require.True(t, ok)
	require.Len(t, entities, 2)

	// A later full mutation replaces, never merges.
	require.NoError(t, sink.ApplyMutation(ctx, fullMutation(key,
		"https://a.blob.core.windows.net/c/three.yaml",
	)))

	entities, ok = sink.Entities(key)
	require.True(t, ok)
	require.Len(t, entities, 1)
	assert.Equal(t, "https://a.blob.core.windows.net/c/three.yaml", entities[0].Target)
}

func TestMemorySink_EmptyMutationClearsKey(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	key := "azure-blob-provider:primary"
	require.NoError(t, sink.ApplyMutation(ctx, fullMutation(key, "https://a.blob.core.windows.net/c/one.yaml")))
	require.NoError(t, sink.ApplyMutation(ctx, fullMutation(key)))

	entities, ok := sink.Entities(key)
	assert.True(t, ok, "a published empty set is still a published set")
	assert.Empty(t, entities)
}

func TestMemorySink_IsolatesSourceKeys(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	require.NoError(t, sink.ApplyMutation(ctx, fullMutation("azure-blob-provider:a", "https://x.blob.core.windows.net/c/a.yaml")))
	require.NoError(t, sink.ApplyMutation(ctx, fullMutation("azure-blob-provider:b", "https://x.blob.core.windows.net/c/b.yaml")))

	a, ok := sink.Entities("azure-blob-provider:a")
	require.True(t, ok)
	assert.Len(t, a, 1)

	_, ok = sink.Entities("azure-blob-provider:never-published")
	assert.False(t, ok)
}

func TestHTTPSink_PostsMutation(t *testing.T) {
	var got *Mutation
	var gotAuth, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, WithToken("secret"))
	mutation := fullMutation("azure-blob-provider:primary", "https://a.blob.core.windows.net/c/one.yaml")

	require.NoError(t, sink.ApplyMutation(context.Background(), mutation))

	require.NotNil(t, got)
	assert.Equal(t, MutationFull, got.Type)
	assert.Equal(t, "azure-blob-provider:primary", got.SourceKey)
	require.Len(t, got.Entities, 1)
	assert.Equal(t, LocationTypeURL, got.Entities[0].Type)
	assert.Equal(t, PresenceRequired, got.Entities[0].Presence)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestHTTPSink_NoTokenOmitsAuthorization(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL)
	require.NoError(t, sink.ApplyMutation(context.Background(), fullMutation("k")))
	assert.Empty(t, gotAuth)
}

func TestHTTPSink_RejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conflict detected", http.StatusConflict)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL)
	err := sink.ApplyMutation(context.Background(), fullMutation("azure-blob-provider:primary"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure-blob-provider:primary")
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "conflict detected")
}

func TestHTTPSink_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.ApplyMutation(ctx, fullMutation("k"))
	require.Error(t, err)
}
