package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

var errStoreDown = errors.New("store down")

// memKV is an in-memory KeyValueStore with failure injection.
type memKV struct {
	data    map[string]string
	failGet bool
	failSet bool
	sets    int
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (m *memKV) Get(_ context.Context, datastore, key string) (string, bool, error) {
	if m.failGet {
		return "", false, errStoreDown
	}
	v, ok := m.data[datastore+"/"+key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, datastore, key, value string) error {
	if m.failSet {
		return errStoreDown
	}
	m.sets++
	m.data[datastore+"/"+key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, datastore, key string) error {
	if m.failSet {
		return errStoreDown
	}
	delete(m.data, datastore+"/"+key)
	return nil
}

// fixedGen returns ids in order and panics once exhausted.
type fixedGen struct {
	ids []string
	n   int
}

func (g *fixedGen) NewECID() ECID {
	if g.n >= len(g.ids) {
		panic("fixedGen: exhausted")
	}
	id := g.ids[g.n]
	g.n++
	return ParseECID(id)
}

// states is a SharedStateLookup backed by a map.
type states map[string]map[string]any

func (s states) SharedState(owner string) (map[string]any, bool) {
	st, ok := s[owner]
	return st, ok
}

func mapOf(t *testing.T, ns string, ids ...string) *Map {
	t.Helper()
	m := NewMap()
	for _, id := range ids {
		m.AddItem(ns, NewItem(id, StateAmbiguous, false))
	}
	return m
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
