// Package testutil builds synthetic deck archives and collection stores for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/decksmith/internal/models"
)

// Layout selects which relational layout BuildStore produces.
type Layout int

const (
	LayoutModern Layout = iota
	LayoutLegacy
	LayoutNotesOnly
)

// Template is a card template definition.
type Template struct {
	Ordinal int
	Q, A    string
	// Raw replaces the encoded template config when set.
	Raw string
}

// Notetype is a notetype definition in either layout.
type Notetype struct {
	ID        int64
	Name      string
	Fields    []string
	Templates []Template
	CSS       string
	// Config replaces the encoded notetype config when set (modern layout only).
	Config string
}

// Deck describes a synthetic collection and the container around it.
type Deck struct {
	Layout    Layout
	Notetypes []Notetype
	Notes     []models.Note
	Cards     []models.Card
	// ShortColumns uses mid/flds/nid/ord/ntid column names instead of the long ones.
	ShortColumns bool
	// LegacyModels, when non-nil, is stored verbatim in col.models.
	LegacyModels *string

	Variant models.Variant
	// Media maps numeric ids to logical filenames; nil omits the media member.
	Media map[string]string
	// MediaData maps numeric ids to payload bytes.
	MediaData map[string][]byte
	// RawMediaIndex replaces the encoded media member when non-nil.
	RawMediaIndex []byte
	// CompressMedia zstd-frames media payloads (compressed-modern only).
	CompressMedia bool
	Extra         map[string][]byte
}

// StrPtr returns &s.
func StrPtr(s string) *string { return &s }

// BuildStore writes the deck's collection to a fresh SQLite file and returns its bytes.
func BuildStore(t *testing.T, d Deck) []byte {
	t.Helper()
	path := WriteStore(t, d)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// WriteStore writes the deck's collection to a SQLite file under t.TempDir.
func WriteStore(t *testing.T, d Deck) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collection.sqlite")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	noteMid, noteFlds, cardNid, cardOrd := "notetype_id", "fields", "note_id", "ordinal"
	if d.ShortColumns {
		noteMid, noteFlds, cardNid, cardOrd = "mid", "flds", "nid", "ord"
	}

	mustExec(t, conn, `CREATE TABLE notes (id INTEGER PRIMARY KEY, guid TEXT NOT NULL, `+
		noteMid+` INTEGER NOT NULL, mod INTEGER NOT NULL DEFAULT 0, `+noteFlds+` TEXT NOT NULL)`)
	mustExec(t, conn, `CREATE TABLE cards (id INTEGER PRIMARY KEY, `+cardNid+` INTEGER NOT NULL, `+
		cardOrd+` INTEGER NOT NULL, type INTEGER NOT NULL DEFAULT 0, queue INTEGER NOT NULL DEFAULT 0, due INTEGER NOT NULL DEFAULT 0)`)

	for _, n := range d.Notes {
		mustExec(t, conn, `INSERT INTO notes (id, guid, `+noteMid+`, `+noteFlds+`) VALUES (?, ?, ?, ?)`,
			n.ID, n.GUID, n.NotetypeID, models.JoinFields(n.Fields))
	}
	for _, c := range d.Cards {
		mustExec(t, conn, `INSERT INTO cards (id, `+cardNid+`, `+cardOrd+`, type, queue, due) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.NoteID, c.Ordinal, c.Type, c.Queue, c.Due)
	}

	switch d.Layout {
	case LayoutModern:
		writeModern(t, conn, d)
	case LayoutLegacy:
		writeLegacy(t, conn, d)
	}
	return path
}

func writeModern(t *testing.T, conn *sql.DB, d Deck) {
	t.Helper()
	ntid, ord := "notetype_id", "ordinal"
	if d.ShortColumns {
		ntid, ord = "ntid", "ord"
	}
	mustExec(t, conn, `CREATE TABLE notetypes (id INTEGER PRIMARY KEY, name TEXT NOT NULL, config BLOB NOT NULL)`)
	mustExec(t, conn, `CREATE TABLE fields (id INTEGER PRIMARY KEY AUTOINCREMENT, `+ntid+` INTEGER NOT NULL, name TEXT NOT NULL, `+ord+` INTEGER NOT NULL)`)
	mustExec(t, conn, `CREATE TABLE templates (`+ntid+` INTEGER NOT NULL, `+ord+` INTEGER NOT NULL, name TEXT NOT NULL DEFAULT '', config BLOB NOT NULL)`)

	for _, nt := range d.Notetypes {
		cfg := nt.Config
		if cfg == "" {
			b, _ := json.Marshal(map[string]string{"css": nt.CSS})
			cfg = string(b)
		}
		mustExec(t, conn, `INSERT INTO notetypes (id, name, config) VALUES (?, ?, ?)`, nt.ID, nt.Name, cfg)
		for i, name := range nt.Fields {
			mustExec(t, conn, `INSERT INTO fields (`+ntid+`, name, `+ord+`) VALUES (?, ?, ?)`, nt.ID, name, i)
		}
		for _, tm := range nt.Templates {
			cfg := tm.Raw
			if cfg == "" {
				b, _ := json.Marshal(map[string]string{"qfmt": tm.Q, "afmt": tm.A})
				cfg = string(b)
			}
			mustExec(t, conn, `INSERT INTO templates (`+ntid+`, `+ord+`, config) VALUES (?, ?, ?)`, nt.ID, tm.Ordinal, cfg)
		}
	}
}

// LegacyModelsJSON encodes notetypes the way a legacy col.models document stores them.
func LegacyModelsJSON(nts []Notetype) string {
	type fld struct {
		Name string `json:"name"`
		Ord  int    `json:"ord"`
	}
	type tmpl struct {
		Name string `json:"name"`
		Ord  int    `json:"ord"`
		Qfmt string `json:"qfmt"`
		Afmt string `json:"afmt"`
	}
	type model struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Flds  []fld  `json:"flds"`
		Tmpls []tmpl `json:"tmpls"`
		CSS   string `json:"css"`
	}
	doc := make(map[string]model, len(nts))
	for _, nt := range nts {
		m := model{ID: nt.ID, Name: nt.Name, CSS: nt.CSS, Flds: []fld{}, Tmpls: []tmpl{}}
		for i, f := range nt.Fields {
			m.Flds = append(m.Flds, fld{Name: f, Ord: i})
		}
		for _, tm := range nt.Templates {
			m.Tmpls = append(m.Tmpls, tmpl{Name: "Card " + strconv.Itoa(tm.Ordinal+1), Ord: tm.Ordinal, Qfmt: tm.Q, Afmt: tm.A})
		}
		doc[strconv.FormatInt(nt.ID, 10)] = m
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

func writeLegacy(t *testing.T, conn *sql.DB, d Deck) {
	t.Helper()
	mustExec(t, conn, `CREATE TABLE col (id INTEGER PRIMARY KEY, crt INTEGER NOT NULL DEFAULT 0, models TEXT NOT NULL)`)
	doc := LegacyModelsJSON(d.Notetypes)
	if d.LegacyModels != nil {
		doc = *d.LegacyModels
	}
	mustExec(t, conn, `INSERT INTO col (id, models) VALUES (1, ?)`, doc)
}

// BuildArchive packs the deck into a zip container and returns its bytes.
func BuildArchive(t *testing.T, d Deck) []byte {
	t.Helper()
	variant := d.Variant
	if variant == "" {
		variant = models.VariantUncompressedModern
	}

	members := make(map[string][]byte)
	store := BuildStore(t, d)
	switch variant {
	case models.VariantCompressedModern:
		members["meta"] = []byte{0x08, 0x03}
		members["collection.anki21b"] = Zstd(t, store)
		// Real compressed archives ship a stub legacy collection alongside.
		members["collection.anki2"] = []byte("stub")
	case models.VariantUncompressedModern:
		members["collection.anki21"] = store
	case models.VariantLegacy:
		members["collection.anki2"] = store
	}

	switch {
	case d.RawMediaIndex != nil:
		members["media"] = d.RawMediaIndex
	case d.Media != nil:
		b, _ := json.Marshal(d.Media)
		members["media"] = b
	}
	for id, data := range d.MediaData {
		if d.CompressMedia {
			data = Zstd(t, data)
		}
		members[id] = data
	}
	for name, data := range d.Extra {
		members[name] = data
	}
	return Zip(t, members)
}

// WriteArchive writes BuildArchive's output to a file under t.TempDir.
func WriteArchive(t *testing.T, d Deck) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deck.apkg")
	if err := os.WriteFile(path, BuildArchive(t, d), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// Zip builds a zip container with deterministic member order.
func Zip(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	names := make([]string, 0, len(members))
	for n := range members {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(members[n]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// Zstd compresses data into a single zstd frame.
func Zstd(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

// BasicDeck is a one-notetype deck with two fields, two templates, and one note referencing media.
func BasicDeck(layout Layout) Deck {
	return Deck{
		Layout: layout,
		Notetypes: []Notetype{{
			ID:     1700000000001,
			Name:   "Basic (and reversed)",
			Fields: []string{"Front", "Back"},
			Templates: []Template{
				{Ordinal: 0, Q: "{{Front}}", A: "{{FrontSide}}<hr id=answer>{{Back}}"},
				{Ordinal: 1, Q: "{{Back}}", A: "{{FrontSide}}<hr id=answer>{{Front}}"},
			},
			CSS: ".card { font-family: arial; }",
		}},
		Notes: []models.Note{
			{ID: 1, GUID: "g1", NotetypeID: 1700000000001, Fields: []string{`<img src="cat.png">`, "[sound:a.mp3]"}},
			{ID: 2, GUID: "g2", NotetypeID: 1700000000001, Fields: []string{"plain", "text"}},
		},
		Cards: []models.Card{
			{ID: 10, NoteID: 1, Ordinal: 0},
			{ID: 11, NoteID: 1, Ordinal: 1},
			{ID: 20, NoteID: 2, Ordinal: 1, Type: 2, Queue: 2, Due: 42},
		},
		Media:     map[string]string{"0": "cat.png", "1": "a.mp3", "2": "unused.ogg"},
		MediaData: map[string][]byte{"0": []byte("PNGDATA"), "1": []byte("MP3DATA"), "2": []byte("OGGDATA")},
	}
}

func mustExec(t *testing.T, conn *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := conn.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
