package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/edgeid/internal/xdm"
)

// KeyValueStore is the on-device string store. Values live under a named
// datastore and a key. Get reports ok=false for a missing key.
type KeyValueStore interface {
	Get(ctx context.Context, datastore, key string) (value string, ok bool, err error)
	Set(ctx context.Context, datastore, key, value string) error
	Delete(ctx context.Context, datastore, key string) error
}

// Storage loads and saves identity properties and reads the legacy ECID.
type Storage struct {
	kv KeyValueStore
}

// NewStorage wraps kv.
func NewStorage(kv KeyValueStore) *Storage {
	return &Storage{kv: kv}
}

// LoadProperties reads persisted properties. It returns nil without error
// when nothing is persisted or the record cannot be decoded.
func (s *Storage) LoadProperties(ctx context.Context) (*Properties, error) {
	raw, ok, err := s.kv.Get(ctx, DatastoreName, PropertiesKey)
	if err != nil {
		return nil, fmt.Errorf("load identity properties: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	data, err := xdm.Decode([]byte(raw))
	if err != nil {
		slog.Warn("persisted identity properties are malformed, ignoring", "error", err)
		return nil, nil
	}
	return PropertiesFromXDM(data), nil
}

// SaveProperties writes p as canonical JSON. A nil p removes the record.
func (s *Storage) SaveProperties(ctx context.Context, p *Properties) error {
	if p == nil {
		if err := s.kv.Delete(ctx, DatastoreName, PropertiesKey); err != nil {
			return fmt.Errorf("delete identity properties: %w", err)
		}
		return nil
	}

	data, err := xdm.MarshalCanonical(p.ToXDM(true))
	if err != nil {
		return fmt.Errorf("encode identity properties: %w", err)
	}
	if err := s.kv.Set(ctx, DatastoreName, PropertiesKey, string(data)); err != nil {
		return fmt.Errorf("save identity properties: %w", err)
	}
	return nil
}

// LoadLegacyECID reads the legacy identity module's persisted ECID.
// It returns the zero ECID when none is stored.
func (s *Storage) LoadLegacyECID(ctx context.Context) (ECID, error) {
	raw, ok, err := s.kv.Get(ctx, LegacyDatastore, LegacyECIDKey)
	if err != nil {
		return ECID{}, fmt.Errorf("load legacy ECID: %w", err)
	}
	if !ok {
		return ECID{}, nil
	}
	return ParseECID(raw), nil
}
