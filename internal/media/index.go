// Package media resolves the numeric-id media index of a deck archive and
// materializes media payloads under their logical filenames.
package media

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/starford/decksmith/internal/apperr"
)

// Index is a bidirectional map between numeric member ids and logical filenames.
// Ids are unique; filenames need not be.
type Index struct {
	byID   map[string]string
	byName map[string][]string
}

// NewIndex builds an Index from an id → filename map.
func NewIndex(m map[string]string) *Index {
	idx := &Index{byID: make(map[string]string, len(m)), byName: make(map[string][]string, len(m))}
	for id, name := range m {
		idx.byID[id] = name
		idx.byName[name] = append(idx.byName[name], id)
	}
	for name := range idx.byName {
		sortIDs(idx.byName[name])
	}
	return idx
}

// ParseIndex decodes the media member. Entries with non-numeric keys or
// non-string values are dropped. On malformed JSON it returns an empty index
// together with a parse error so the caller can degrade and continue.
func ParseIndex(data []byte) (*Index, error) {
	if len(data) == 0 {
		return NewIndex(nil), nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewIndex(nil), apperr.E(apperr.KindParse, "media: parse index", err)
	}
	m := make(map[string]string, len(raw))
	for k, v := range raw {
		name, ok := v.(string)
		if !ok || name == "" {
			continue
		}
		if _, err := strconv.ParseUint(k, 10, 64); err != nil {
			continue
		}
		m[k] = name
	}
	return NewIndex(m), nil
}

// Len returns the number of indexed ids.
func (x *Index) Len() int { return len(x.byID) }

// Name returns the logical filename of an id.
func (x *Index) Name(id string) (string, bool) {
	n, ok := x.byID[id]
	return n, ok
}

// IDs returns every id mapped to name, in ascending numeric order.
func (x *Index) IDs(name string) []string {
	return append([]string(nil), x.byName[name]...)
}

// AllIDs returns every id in ascending numeric order.
func (x *Index) AllIDs() []string {
	out := make([]string, 0, len(x.byID))
	for id := range x.byID {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// Map returns a copy of the id → filename mapping.
func (x *Index) Map() map[string]string {
	out := make(map[string]string, len(x.byID))
	for k, v := range x.byID {
		out[k] = v
	}
	return out
}

func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseUint(ids[i], 10, 64)
		b, _ := strconv.ParseUint(ids[j], 10, 64)
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
}
