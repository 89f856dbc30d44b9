// Package schema adapts the relation layouts of every collection generation
// into one set of Notetype, Field, Template, Note and Card records.
//
// The layout is probed once per store (Probe) and the resulting *Layout is
// threaded through every read. Tier selection is purely structural:
//
//  1. modern: a notetypes relation with id, name and config columns;
//  2. legacy: a col relation whose models column holds a non-empty JSON document;
//  3. minimal: raw notes only, with empty notetype names and field lists.
package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/starford/decksmith/internal/apperr"
	"github.com/starford/decksmith/internal/models"
)

// Querier is the subset of *sql.DB the adapter needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Column-name candidates, in preference order.
var (
	notetypeRefCols = []string{"notetype_id", "mid", "ntid"}
	joinedFieldCols = []string{"delimiter_joined_fields", "fields", "flds"}
	noteRefCols     = []string{"note_id", "nid"}
	ordinalCols     = []string{"ordinal", "ord"}
	fieldNtidCols   = []string{"notetype_id", "ntid", "mid"}
)

type noteCols struct{ mid, flds string }

type cardCols struct {
	nid, ord        string
	typ, queue, due string
}

type fieldCols struct{ id, ntid, ord string }

type templateCols struct{ ntid, ord string }

// Layout is the tagged classification of one store.
type Layout struct {
	Variant models.SchemaVariant

	notes     noteCols
	cards     *cardCols
	fields    *fieldCols
	templates *templateCols
	legacy    []legacyModel
}

// HasCards reports whether the store carries a cards relation.
func (l *Layout) HasCards() bool { return l.cards != nil }

type legacyField struct {
	Name string `json:"name"`
}

type legacyTemplate struct {
	Qfmt string `json:"qfmt"`
	Afmt string `json:"afmt"`
}

type legacyModel struct {
	id    int64
	raw   string
	Name  string           `json:"name"`
	Flds  []legacyField    `json:"flds"`
	Tmpls []legacyTemplate `json:"tmpls"`
}

// Probe inspects the store's relations and returns its layout.
// Only a store without a usable notes relation is an error; every other
// structural gap routes to a lower tier.
func Probe(ctx context.Context, q Querier, logger *slog.Logger) (*Layout, error) {
	notes, err := columns(ctx, q, "notes")
	if err != nil {
		return nil, err
	}
	l := &Layout{}
	l.notes.mid = pick(notes, notetypeRefCols...)
	l.notes.flds = pick(notes, joinedFieldCols...)
	if !notes["id"] || l.notes.mid == "" || l.notes.flds == "" {
		return nil, apperr.E(apperr.KindDatabase, "schema: probe", fmt.Errorf("notes relation missing or incomplete"))
	}

	cards, err := columns(ctx, q, "cards")
	if err != nil {
		return nil, err
	}
	if nid, ord := pick(cards, noteRefCols...), pick(cards, ordinalCols...); cards["id"] && nid != "" && ord != "" {
		l.cards = &cardCols{
			nid:   nid,
			ord:   ord,
			typ:   orZero(cards, "type"),
			queue: orZero(cards, "queue"),
			due:   orZero(cards, "due"),
		}
	}

	ok, err := l.probeModern(ctx, q)
	if err != nil {
		return nil, err
	}
	if ok {
		l.Variant = models.SchemaModern
		return l, nil
	}

	ok, err = l.probeLegacy(ctx, q, logger)
	if err != nil {
		return nil, err
	}
	if ok {
		l.Variant = models.SchemaLegacy
		return l, nil
	}

	logger.Warn("schema: no notetype metadata, using minimal layout")
	l.Variant = models.SchemaMinimal
	return l, nil
}

func (l *Layout) probeModern(ctx context.Context, q Querier) (bool, error) {
	nt, err := columns(ctx, q, "notetypes")
	if err != nil {
		return false, err
	}
	if !nt["id"] || !nt["name"] || !nt["config"] {
		return false, nil
	}

	fc, err := columns(ctx, q, "fields")
	if err != nil {
		return false, err
	}
	if ntid, ord := pick(fc, fieldNtidCols...), pick(fc, ordinalCols...); fc["name"] && ntid != "" && ord != "" {
		l.fields = &fieldCols{id: pick(fc, "id"), ntid: ntid, ord: ord}
	}

	tc, err := columns(ctx, q, "templates")
	if err != nil {
		return false, err
	}
	if ntid, ord := pick(tc, fieldNtidCols...), pick(tc, ordinalCols...); tc["config"] && ntid != "" && ord != "" {
		l.templates = &templateCols{ntid: ntid, ord: ord}
	}
	return true, nil
}

func (l *Layout) probeLegacy(ctx context.Context, q Querier, logger *slog.Logger) (bool, error) {
	col, err := columns(ctx, q, "col")
	if err != nil {
		return false, err
	}
	if !col["models"] {
		return false, nil
	}

	var doc sql.NullString
	err = q.QueryRowContext(ctx, `SELECT models FROM col LIMIT 1`).Scan(&doc)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.E(apperr.KindDatabase, "schema: read col.models", err)
	}

	parsed, err := parseLegacyModels(doc.String)
	if err != nil {
		logger.Warn("schema: legacy models document unparsable", slog.String("error", err.Error()))
		return false, nil
	}
	if len(parsed) == 0 {
		return false, nil
	}
	l.legacy = parsed
	return true, nil
}

// parseLegacyModels decodes the col.models document. Entries whose key is not
// a notetype id are skipped; the rest are returned sorted by id.
func parseLegacyModels(doc string) ([]legacyModel, error) {
	if doc == "" {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, apperr.E(apperr.KindParse, "schema: legacy models", err)
	}
	out := make([]legacyModel, 0, len(raw))
	for key, entry := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		var m legacyModel
		if err := json.Unmarshal(entry, &m); err != nil {
			continue
		}
		m.id = id
		m.raw = string(entry)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

// columns returns the column set of a relation, empty when it does not exist.
func columns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, apperr.E(apperr.KindDatabase, "schema: table info "+table, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.E(apperr.KindDatabase, "schema: table info "+table, err)
		}
		out[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.E(apperr.KindDatabase, "schema: table info "+table, err)
	}
	return out, nil
}

func pick(cols map[string]bool, candidates ...string) string {
	for _, c := range candidates {
		if cols[c] {
			return c
		}
	}
	return ""
}

func orZero(cols map[string]bool, name string) string {
	if cols[name] {
		return name
	}
	return "0"
}
