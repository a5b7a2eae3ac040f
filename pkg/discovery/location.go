package discovery

import (
	"github.com/fathomlabs/stratus/pkg/catalog"
	"github.com/fathomlabs/stratus/pkg/objecturl"
)

// Location maps a discovered object key to a catalog location entity.
//
// The target is built with the shared URL joiner, so it round-trips
// through objecturl.Parse to recover exactly {container, key}. Presence
// is always required: a discovered object exists by definition at the
// moment of discovery.
func Location(endpoint, container, key string) catalog.LocationEntity {
	return catalog.LocationEntity{
		Type:     catalog.LocationTypeURL,
		Target:   objecturl.Join(endpoint, container, key),
		Presence: catalog.PresenceRequired,
	}
}
