// Package models defines the domain types for Decksmith.
package models

// Variant identifies which archive generation a container holds.
type Variant string

const (
	VariantCompressedModern   Variant = "compressed-modern"
	VariantUncompressedModern Variant = "uncompressed-modern"
	VariantLegacy             Variant = "legacy"
)

// Valid reports whether v is one of the known generation labels.
func (v Variant) Valid() bool {
	switch v {
	case VariantCompressedModern, VariantUncompressedModern, VariantLegacy:
		return true
	}
	return false
}

// SchemaVariant is the relation layout detected in a collection store.
// It is computed once per store and threaded through every read.
type SchemaVariant int

const (
	// SchemaMinimal exposes only raw notes (and cards when present).
	SchemaMinimal SchemaVariant = iota
	// SchemaLegacy keeps every notetype inside one JSON document in col.models.
	SchemaLegacy
	// SchemaModern has dedicated notetypes, fields and templates relations.
	SchemaModern
)

func (s SchemaVariant) String() string {
	switch s {
	case SchemaModern:
		return "modern"
	case SchemaLegacy:
		return "legacy"
	default:
		return "minimal"
	}
}

// FieldSeparator joins field values inside a note record.
const FieldSeparator = "\x1f"

// Note is one row of the notes relation.
type Note struct {
	ID         int64    `json:"id"`
	GUID       string   `json:"guid"`
	NotetypeID int64    `json:"notetype_id"`
	Fields     []string `json:"fields"`
}

// Notetype describes a family of notes. Config is kept in its raw,
// schema-dependent encoding (structured document or legacy model JSON).
type Notetype struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Config string `json:"config,omitempty"`
}

// Field is a named slot of a notetype. In legacy stores the ordinal doubles as id.
type Field struct {
	ID         int64  `json:"id"`
	NotetypeID int64  `json:"notetype_id"`
	Name       string `json:"name"`
	Ordinal    int    `json:"ordinal"`
}

// Card is one reviewable card generated from a note.
type Card struct {
	ID      int64 `json:"id"`
	NoteID  int64 `json:"note_id"`
	Ordinal int   `json:"ordinal"`
	Type    int   `json:"type"`
	Queue   int   `json:"queue"`
	Due     int64 `json:"due"`
}

// Template holds the renderable formats of one card ordinal.
type Template struct {
	NotetypeID     int64  `json:"notetype_id"`
	Ordinal        int    `json:"ordinal"`
	QuestionFormat string `json:"question_format"`
	AnswerFormat   string `json:"answer_format"`
	// Raw is the undecoded template config, used when formats must be split heuristically.
	Raw string `json:"-"`
}

// NoteView is a note joined with its notetype name and ordered field names.
type NoteView struct {
	Note
	NotetypeName string   `json:"notetype_name"`
	FieldNames   []string `json:"field_names"`
}

// Collection is everything read from one store for card assembly.
type Collection struct {
	Schema    SchemaVariant `json:"schema"`
	Notes     []Note        `json:"notes"`
	Notetypes []Notetype    `json:"notetypes"`
	Fields    []Field       `json:"fields"`
	Cards     []Card        `json:"cards"`
	Templates []Template    `json:"-"`
}

// ResolvedNote is a note with the template and stylesheet needed to render one card.
type ResolvedNote struct {
	Note           NoteView  `json:"note"`
	Notetype       *Notetype `json:"notetype,omitempty"`
	Fields         []Field   `json:"fields"`
	Ordinal        int       `json:"ordinal"`
	Variant        Variant   `json:"variant,omitempty"`
	QuestionFormat string    `json:"question_format"`
	AnswerFormat   string    `json:"answer_format"`
	Stylesheet     string    `json:"stylesheet"`
}
