// Package assembler joins notes with their notetype names and ordered field names.
package assembler

import (
	"sort"

	"github.com/starford/decksmith/internal/models"
)

// Catalog indexes notetypes and fields for repeated lookups.
type Catalog struct {
	names  map[int64]string
	fields map[int64][]models.Field
}

// NewCatalog builds a Catalog. Fields are ordered by ordinal per notetype.
func NewCatalog(notetypes []models.Notetype, fields []models.Field) *Catalog {
	c := &Catalog{
		names:  make(map[int64]string, len(notetypes)),
		fields: make(map[int64][]models.Field),
	}
	for _, nt := range notetypes {
		c.names[nt.ID] = nt.Name
	}
	for _, f := range fields {
		c.fields[f.NotetypeID] = append(c.fields[f.NotetypeID], f)
	}
	for id := range c.fields {
		fs := c.fields[id]
		sort.SliceStable(fs, func(i, j int) bool { return fs[i].Ordinal < fs[j].Ordinal })
	}
	return c
}

// Fields returns the ordered fields of a notetype, or nil when unknown.
func (c *Catalog) Fields(notetypeID int64) []models.Field {
	return c.fields[notetypeID]
}

// View joins one note. Unknown notetypes yield an empty name and no field names.
func (c *Catalog) View(n models.Note) models.NoteView {
	fs := c.fields[n.NotetypeID]
	names := make([]string, 0, len(fs))
	for _, f := range fs {
		names = append(names, f.Name)
	}
	return models.NoteView{
		Note:         n,
		NotetypeName: c.names[n.NotetypeID],
		FieldNames:   names,
	}
}

// Assemble joins every note of a collection, preserving note order.
func Assemble(col *models.Collection) []models.NoteView {
	c := NewCatalog(col.Notetypes, col.Fields)
	out := make([]models.NoteView, 0, len(col.Notes))
	for _, n := range col.Notes {
		out = append(out, c.View(n))
	}
	return out
}
