package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/decksmith/internal/apperr"
	"github.com/starford/decksmith/internal/models"
)

// Reader reads records from a store according to a probed Layout.
type Reader struct {
	q      Querier
	layout *Layout
}

// NewReader binds a layout to a store.
func NewReader(q Querier, layout *Layout) *Reader {
	return &Reader{q: q, layout: layout}
}

// Layout returns the layout the reader was built with.
func (r *Reader) Layout() *Layout { return r.layout }

// Collection reads every record needed for card assembly.
func (r *Reader) Collection(ctx context.Context) (*models.Collection, error) {
	notes, err := r.Notes(ctx)
	if err != nil {
		return nil, err
	}
	cards, err := r.Cards(ctx)
	if err != nil {
		return nil, err
	}
	nts, err := r.Notetypes(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := r.Fields(ctx)
	if err != nil {
		return nil, err
	}
	tmpls, err := r.Templates(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Collection{
		Schema:    r.layout.Variant,
		Notes:     notes,
		Notetypes: nts,
		Fields:    fields,
		Cards:     cards,
		Templates: tmpls,
	}, nil
}

func (r *Reader) noteQuery(where string) string {
	c := r.layout.notes
	return fmt.Sprintf(`SELECT id, COALESCE(guid, ''), %q, COALESCE(%q, '') FROM notes %s ORDER BY id`, c.mid, c.flds, where)
}

// Notes returns every note ordered by id.
func (r *Reader) Notes(ctx context.Context) ([]models.Note, error) {
	rows, err := r.q.QueryContext(ctx, r.noteQuery(""))
	if err != nil {
		return nil, apperr.E(apperr.KindDatabase, "schema: notes", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.E(apperr.KindDatabase, "schema: notes", err)
	}
	return out, nil
}

// Note returns one note, or nil when the id does not exist.
func (r *Reader) Note(ctx context.Context, id int64) (*models.Note, error) {
	rows, err := r.q.QueryContext(ctx, r.noteQuery("WHERE id = ?"), id)
	if err != nil {
		return nil, apperr.E(apperr.KindDatabase, "schema: note", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, apperr.E(apperr.KindDatabase, "schema: note", err)
		}
		return nil, nil
	}
	n, err := scanNote(rows)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CountNotes returns the number of notes in the store.
func (r *Reader) CountNotes(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT count(*) FROM notes`).Scan(&n); err != nil {
		return 0, apperr.E(apperr.KindDatabase, "schema: count notes", err)
	}
	return n, nil
}

func scanNote(rows *sql.Rows) (models.Note, error) {
	var (
		n      models.Note
		joined string
	)
	if err := rows.Scan(&n.ID, &n.GUID, &n.NotetypeID, &joined); err != nil {
		return n, apperr.E(apperr.KindDatabase, "schema: scan note", err)
	}
	n.Fields = models.SplitFields(joined)
	return n, nil
}

func (r *Reader) cardQuery(where, tail string) string {
	c := r.layout.cards
	return fmt.Sprintf(`SELECT id, %q, %q, %s, %s, %s FROM cards %s ORDER BY %q, %q, id %s`,
		c.nid, c.ord, c.typ, c.queue, c.due, where, c.nid, c.ord, tail)
}

// Cards returns every card ordered by note, ordinal and id. A store without
// a cards relation yields none.
func (r *Reader) Cards(ctx context.Context) ([]models.Card, error) {
	if r.layout.cards == nil {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx, r.cardQuery("", ""))
	if err != nil {
		return nil, apperr.E(apperr.KindDatabase, "schema: cards", err)
	}
	defer rows.Close()

	var out []models.Card
	for rows.Next() {
		var c models.Card
		if err := rows.Scan(&c.ID, &c.NoteID, &c.Ordinal, &c.Type, &c.Queue, &c.Due); err != nil {
			return nil, apperr.E(apperr.KindDatabase, "schema: scan card", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.E(apperr.KindDatabase, "schema: cards", err)
	}
	return out, nil
}

// FirstCard returns the lowest-ordinal card of a note (ties broken by id), or nil.
func (r *Reader) FirstCard(ctx context.Context, noteID int64) (*models.Card, error) {
	if r.layout.cards == nil {
		return nil, nil
	}
	where := fmt.Sprintf("WHERE %q = ?", r.layout.cards.nid)
	var c models.Card
	err := r.q.QueryRowContext(ctx, r.cardQuery(where, "LIMIT 1"), noteID).
		Scan(&c.ID, &c.NoteID, &c.Ordinal, &c.Type, &c.Queue, &c.Due)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.E(apperr.KindDatabase, "schema: first card", err)
	}
	return &c, nil
}

// Notetypes returns every notetype ordered by id.
func (r *Reader) Notetypes(ctx context.Context) ([]models.Notetype, error) {
	switch r.layout.Variant {
	case models.SchemaModern:
		rows, err := r.q.QueryContext(ctx, `SELECT id, COALESCE(name, ''), COALESCE(config, '') FROM notetypes ORDER BY id`)
		if err != nil {
			return nil, apperr.E(apperr.KindDatabase, "schema: notetypes", err)
		}
		defer rows.Close()

		var out []models.Notetype
		for rows.Next() {
			var (
				nt  models.Notetype
				cfg []byte
			)
			if err := rows.Scan(&nt.ID, &nt.Name, &cfg); err != nil {
				return nil, apperr.E(apperr.KindDatabase, "schema: scan notetype", err)
			}
			nt.Config = string(cfg)
			out = append(out, nt)
		}
		if err := rows.Err(); err != nil {
			return nil, apperr.E(apperr.KindDatabase, "schema: notetypes", err)
		}
		return out, nil

	case models.SchemaLegacy:
		out := make([]models.Notetype, 0, len(r.layout.legacy))
		for _, m := range r.layout.legacy {
			out = append(out, models.Notetype{ID: m.id, Name: m.Name, Config: m.raw})
		}
		return out, nil
	}
	return nil, nil
}

// Notetype returns one notetype, or nil when it does not exist.
func (r *Reader) Notetype(ctx context.Context, id int64) (*models.Notetype, error) {
	nts, err := r.Notetypes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range nts {
		if nts[i].ID == id {
			return &nts[i], nil
		}
	}
	return nil, nil
}

// Fields returns every field ordered by notetype and ordinal. In the legacy
// tier the ordinal is the position in the document's field list and doubles as id.
func (r *Reader) Fields(ctx context.Context) ([]models.Field, error) {
	switch r.layout.Variant {
	case models.SchemaModern:
		c := r.layout.fields
		if c == nil {
			return nil, nil
		}
		idCol := fmt.Sprintf("%q", c.ord)
		if c.id != "" {
			idCol = fmt.Sprintf("%q", c.id)
		}
		query := fmt.Sprintf(`SELECT %s, %q, COALESCE(name, ''), %q FROM fields ORDER BY %q, %q`,
			idCol, c.ntid, c.ord, c.ntid, c.ord)
		rows, err := r.q.QueryContext(ctx, query)
		if err != nil {
			return nil, apperr.E(apperr.KindDatabase, "schema: fields", err)
		}
		defer rows.Close()

		var out []models.Field
		for rows.Next() {
			var f models.Field
			if err := rows.Scan(&f.ID, &f.NotetypeID, &f.Name, &f.Ordinal); err != nil {
				return nil, apperr.E(apperr.KindDatabase, "schema: scan field", err)
			}
			out = append(out, f)
		}
		if err := rows.Err(); err != nil {
			return nil, apperr.E(apperr.KindDatabase, "schema: fields", err)
		}
		return out, nil

	case models.SchemaLegacy:
		var out []models.Field
		for _, m := range r.layout.legacy {
			for i, f := range m.Flds {
				out = append(out, models.Field{ID: int64(i), NotetypeID: m.id, Name: f.Name, Ordinal: i})
			}
		}
		return out, nil
	}
	return nil, nil
}

// FieldsOf returns the fields of one notetype ordered by ordinal.
func (r *Reader) FieldsOf(ctx context.Context, notetypeID int64) ([]models.Field, error) {
	all, err := r.Fields(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Field
	for _, f := range all {
		if f.NotetypeID == notetypeID {
			out = append(out, f)
		}
	}
	return out, nil
}

// Templates returns every template ordered by notetype and ordinal. Modern
// templates carry only their raw config; legacy ones have formats filled in.
func (r *Reader) Templates(ctx context.Context) ([]models.Template, error) {
	switch r.layout.Variant {
	case models.SchemaModern:
		c := r.layout.templates
		if c == nil {
			return nil, nil
		}
		query := fmt.Sprintf(`SELECT %q, %q, COALESCE(config, '') FROM templates ORDER BY %q, %q`, c.ntid, c.ord, c.ntid, c.ord)
		rows, err := r.q.QueryContext(ctx, query)
		if err != nil {
			return nil, apperr.E(apperr.KindDatabase, "schema: templates", err)
		}
		defer rows.Close()

		var out []models.Template
		for rows.Next() {
			var (
				t   models.Template
				cfg []byte
			)
			if err := rows.Scan(&t.NotetypeID, &t.Ordinal, &cfg); err != nil {
				return nil, apperr.E(apperr.KindDatabase, "schema: scan template", err)
			}
			t.Raw = string(cfg)
			out = append(out, t)
		}
		if err := rows.Err(); err != nil {
			return nil, apperr.E(apperr.KindDatabase, "schema: templates", err)
		}
		return out, nil

	case models.SchemaLegacy:
		var out []models.Template
		for _, m := range r.layout.legacy {
			for i, t := range m.Tmpls {
				out = append(out, models.Template{NotetypeID: m.id, Ordinal: i, QuestionFormat: t.Qfmt, AnswerFormat: t.Afmt})
			}
		}
		return out, nil
	}
	return nil, nil
}

// TemplatesOf returns the templates of one notetype.
func (r *Reader) TemplatesOf(ctx context.Context, notetypeID int64) ([]models.Template, error) {
	all, err := r.Templates(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Template
	for _, t := range all {
		if t.NotetypeID == notetypeID {
			out = append(out, t)
		}
	}
	return out, nil
}
