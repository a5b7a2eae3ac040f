// Package catalog defines the downstream mutation contract discovery
// providers publish to.
//
// A full mutation declares the complete authoritative membership of one
// source. The sink performs the diff against whatever it previously held
// under the same source key; publishers never compute deltas.
package catalog

import "context"

// Entity types and presence requirements for location entities.
const (
	// LocationTypeURL marks a location addressed by a fully qualified
	// object URL.
	LocationTypeURL = "url"

	// PresenceRequired marks a location whose target must exist.
	PresenceRequired = "required"
)

// MutationFull is the only mutation type providers emit: the sink must
// end up holding exactly the batch's entities for the source key,
// discarding anything previously held under that key.
const MutationFull = "full"

// LocationEntity describes the location of one metadata object.
// Derived during a refresh cycle and never mutated afterwards.
type LocationEntity struct {
	// Type is always LocationTypeURL for object-storage discovery.
	Type string `json:"type"`

	// Target is the fully qualified object URL.
	Target string `json:"target"`

	// Presence is always PresenceRequired for discovered objects.
	Presence string `json:"presence"`
}

// Mutation is the complete current state of one source.
type Mutation struct {
	// Type is the mutation type, always MutationFull.
	Type string `json:"type"`

	// SourceKey is the downstream ownership key. It is derived
	// deterministically from the provider name so mutations land
	// against the same key across restarts.
	SourceKey string `json:"sourceKey"`

	// Entities is the ordered, complete entity set for the source.
	Entities []LocationEntity `json:"entities"`
}

// Sink receives full mutations.
//
// Implementations guarantee idempotent replace semantics per source key:
// applying the same mutation twice leaves the sink unchanged.
type Sink interface {
	ApplyMutation(ctx context.Context, m *Mutation) error
}
