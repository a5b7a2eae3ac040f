package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemorySink retains the last mutation applied per source key.
//
// It backs tests and the dry-run path of the CLI, and doubles as a
// reference for the replace semantics sinks must implement: each apply
// discards whatever was previously held under the same key.
type MemorySink struct {
	mu    sync.Mutex
	state map[string][]LocationEntity
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{state: make(map[string][]LocationEntity)}
}

// ApplyMutation replaces the held entity set for the mutation's source key.
func (s *MemorySink) ApplyMutation(_ context.Context, m *Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities := make([]LocationEntity, len(m.Entities))
	copy(entities, m.Entities)
	s.state[m.SourceKey] = entities
	return nil
}

// Entities returns the entity set currently held for a source key.
// The second return reports whether the key has ever been published.
func (s *MemorySink) Entities(sourceKey string) ([]LocationEntity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities, ok := s.state[sourceKey]
	if !ok {
		return nil, false
	}
	out := make([]LocationEntity, len(entities))
	copy(out, entities)
	return out, true
}

// LogSink logs applied mutations instead of delivering them anywhere.
// Used when no catalog endpoint is configured.
type LogSink struct {
	logger *zap.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a sink that logs mutation summaries.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// ApplyMutation logs the mutation summary.
func (s *LogSink) ApplyMutation(_ context.Context, m *Mutation) error {
	s.logger.Info("Catalog mutation (no endpoint configured, dropping)",
		zap.String("source_key", m.SourceKey),
		zap.String("type", m.Type),
		zap.Int("entities", len(m.Entities)))
	return nil
}
