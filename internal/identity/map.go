package identity

import (
	"log/slog"
	"slices"
)

// Map is an ordered multi-map from namespace to identity items.
//
// Invariants:
//   - a namespace is present only while its item list is non-empty
//   - no two items in a namespace are Equal
//   - item order within a namespace is preserved (index 0 is primary for ECID)
//   - namespaces iterate in first-insertion order
//
// The zero value is an empty map ready to use.
type Map struct {
	order []string
	items map[string][]Item
}

// NewMap creates an empty identity map.
func NewMap() *Map {
	return &Map{items: make(map[string][]Item)}
}

// ItemsForNamespace returns a copy of the items in ns.
// The result is empty, never nil, when ns is absent or empty.
func (m *Map) ItemsForNamespace(ns string) []Item {
	if ns == "" || m.items == nil {
		return []Item{}
	}
	list := m.items[ns]
	out := make([]Item, len(list))
	copy(out, list)
	return out
}

// Namespaces returns the namespaces in first-insertion order.
func (m *Map) Namespaces() []string {
	return slices.Clone(m.order)
}

// IsEmpty reports whether the map holds no items.
func (m *Map) IsEmpty() bool {
	return len(m.order) == 0
}

// AddItem adds item to ns. An item Equal to an existing one replaces it in
// place, keeping its position; otherwise the item is appended.
// Empty namespaces and items without an ID are ignored.
func (m *Map) AddItem(ns string, item Item) {
	if !m.validate("add", ns, item) {
		return
	}
	list := m.items[ns]
	if idx := indexOf(list, item); idx >= 0 {
		list[idx] = item
		return
	}
	m.put(ns, append(list, item))
}

// RemoveItem removes the first item in ns Equal to item and drops the
// namespace when it becomes empty. It reports whether an item was removed.
func (m *Map) RemoveItem(ns string, item Item) bool {
	if !m.validate("remove", ns, item) {
		return false
	}
	list := m.items[ns]
	idx := indexOf(list, item)
	if idx < 0 {
		return false
	}
	m.put(ns, slices.Delete(list, idx, idx+1))
	return true
}

// ClearNamespace removes every item in ns and reports whether anything was
// removed.
func (m *Map) ClearNamespace(ns string) bool {
	if m.items == nil {
		return false
	}
	if _, ok := m.items[ns]; !ok {
		return false
	}
	m.put(ns, nil)
	return true
}

// Merge adds every item of other, namespace by namespace, with AddItem's
// update-or-add semantics.
func (m *Map) Merge(other *Map) {
	if other == nil {
		return
	}
	for _, ns := range other.order {
		for _, item := range other.items[ns] {
			m.AddItem(ns, item)
		}
	}
}

// Remove removes every item of other from m.
func (m *Map) Remove(other *Map) {
	if other == nil {
		return
	}
	for _, ns := range other.order {
		for _, item := range other.items[ns] {
			m.RemoveItem(ns, item)
		}
	}
}

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	out := NewMap()
	if m == nil {
		return out
	}
	out.order = slices.Clone(m.order)
	for ns, list := range m.items {
		out.items[ns] = slices.Clone(list)
	}
	return out
}

// ToXDM returns the wire form: namespace -> list of item objects.
func (m *Map) ToXDM() map[string]any {
	out := make(map[string]any, len(m.order))
	for _, ns := range m.order {
		list := m.items[ns]
		items := make([]any, len(list))
		for i, item := range list {
			items[i] = item.ToXDM()
		}
		out[ns] = items
	}
	return out
}

// MapFromXDM parses the "identityMap" object of data.
//
// It returns (nil, false) when data has no identityMap object, meaning no
// identity data is present. Otherwise it returns the parsed map, possibly
// empty. Namespaces that are not lists and items that fail ItemFromXDM are
// skipped. Namespaces are visited in sorted order so parsing is
// deterministic.
func MapFromXDM(data map[string]any) (*Map, bool) {
	raw, ok := data[KeyIdentityMap].(map[string]any)
	if !ok {
		return nil, false
	}

	m := NewMap()
	namespaces := make([]string, 0, len(raw))
	for ns := range raw {
		namespaces = append(namespaces, ns)
	}
	slices.Sort(namespaces)

	for _, ns := range namespaces {
		list, ok := raw[ns].([]any)
		if !ok {
			slog.Debug("identity map namespace is not a list, skipping", "namespace", ns)
			continue
		}
		for _, entry := range list {
			item, ok := ItemFromXDM(entry)
			if !ok {
				continue
			}
			m.AddItem(ns, item)
		}
	}
	return m, true
}

// insertFirst removes any item Equal to item from ns and inserts item at
// index 0.
func (m *Map) insertFirst(ns string, item Item) {
	if !m.validate("insert", ns, item) {
		return
	}
	list := m.items[ns]
	if idx := indexOf(list, item); idx >= 0 {
		list = slices.Delete(list, idx, idx+1)
	}
	m.put(ns, slices.Insert(list, 0, item))
}

// truncate keeps at most n items in ns.
func (m *Map) truncate(ns string, n int) {
	list := m.items[ns]
	if len(list) > n {
		m.put(ns, list[:n])
	}
}

// put stores list under ns, maintaining namespace order and pruning empty
// lists.
func (m *Map) put(ns string, list []Item) {
	if m.items == nil {
		m.items = make(map[string][]Item)
	}
	_, existed := m.items[ns]
	if len(list) == 0 {
		if existed {
			delete(m.items, ns)
			m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == ns })
		}
		return
	}
	if !existed {
		m.order = append(m.order, ns)
	}
	m.items[ns] = list
}

func (m *Map) validate(op, ns string, item Item) bool {
	if ns == "" {
		slog.Debug("identity map "+op+" ignored, namespace is empty")
		return false
	}
	if item.ID == "" {
		slog.Debug("identity map "+op+" ignored, item has no id", "namespace", ns)
		return false
	}
	return true
}

func indexOf(list []Item, item Item) int {
	return slices.IndexFunc(list, item.Equal)
}
