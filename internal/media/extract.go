package media

import (
	"log/slog"
	"path"
	"strings"

	"github.com/starford/decksmith/internal/archive"
	"github.com/starford/decksmith/internal/models"
	"github.com/starford/decksmith/internal/snapshot"
)

// Mode selects which indexed entries are materialized.
type Mode string

const (
	// ModeReferenced materializes only media referenced from note fields.
	ModeReferenced Mode = "referenced"
	// ModeFull materializes every indexed entry.
	ModeFull Mode = "full"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeReferenced || m == ModeFull }

// Writer receives materialized media under logical filenames.
type Writer interface {
	Write(path string, content []byte) error
}

// Skipped records an entry that could not be materialized.
type Skipped struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result lists what Extract wrote and skipped.
type Result struct {
	Files   []string  `json:"files"`
	Skipped []Skipped `json:"skipped,omitempty"`
}

// Select returns the ids to materialize for mode, in ascending numeric order.
func Select(idx *Index, mode Mode, notes []models.Note) []string {
	if mode == ModeFull {
		return idx.AllIDs()
	}
	var ids []string
	for name := range References(notes) {
		ids = append(ids, idx.IDs(name)...)
	}
	ids = dedupe(ids)
	sortIDs(ids)
	return ids
}

// Extract writes the selected entries to w under prefix/<logical name>.
// Unreadable or unsafe entries are skipped with a warning; only the batch
// as a whole is returned. Ids are processed in ascending order, so when two
// ids share a filename the higher id wins.
func Extract(a *archive.Archive, idx *Index, mode Mode, notes []models.Note, w Writer, prefix string, logger *slog.Logger) *Result {
	res := &Result{}
	written := make(map[string]struct{})
	skip := func(id, name, reason string) {
		logger.Warn("media: entry skipped",
			slog.String("id", id), slog.String("name", name), slog.String("reason", reason))
		res.Skipped = append(res.Skipped, Skipped{ID: id, Name: name, Reason: reason})
	}

	for _, id := range Select(idx, mode, notes) {
		name, _ := idx.Name(id)
		if !a.Has(id) {
			skip(id, name, "member missing")
			continue
		}
		data, err := a.Read(id)
		if err != nil {
			skip(id, name, err.Error())
			continue
		}
		if a.Variant() == models.VariantCompressedModern && snapshot.IsZstdFrame(data) {
			if data, err = snapshot.Decompress(data); err != nil {
				skip(id, name, err.Error())
				continue
			}
		}
		target := path.Join(prefix, name)
		if name == "" || (prefix != "" && !strings.HasPrefix(target, prefix+"/")) {
			skip(id, name, "unsafe filename")
			continue
		}
		if err := w.Write(target, data); err != nil {
			skip(id, name, err.Error())
			continue
		}
		if _, dup := written[name]; !dup {
			written[name] = struct{}{}
			res.Files = append(res.Files, name)
		}
	}
	return res
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
