package schema

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/decksmith/internal/apperr"
	"github.com/starford/decksmith/internal/models"
	"github.com/starford/decksmith/internal/snapshot"
	"github.com/starford/decksmith/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func openDeck(t *testing.T, d testutil.Deck) *Reader {
	t.Helper()
	s, err := snapshot.Open(context.Background(), testutil.WriteStore(t, d))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	layout, err := Probe(context.Background(), s.Conn(), quietLogger())
	require.NoError(t, err)
	return NewReader(s.Conn(), layout)
}

func TestProbe_Modern(t *testing.T) {
	for _, short := range []bool{false, true} {
		d := testutil.BasicDeck(testutil.LayoutModern)
		d.ShortColumns = short
		r := openDeck(t, d)
		require.Equal(t, models.SchemaModern, r.Layout().Variant)

		col, err := r.Collection(context.Background())
		require.NoError(t, err)
		require.Len(t, col.Notetypes, 1)
		assert.Equal(t, "Basic (and reversed)", col.Notetypes[0].Name)
		assert.Contains(t, col.Notetypes[0].Config, "font-family")
		require.Len(t, col.Fields, 2)
		assert.Equal(t, "Front", col.Fields[0].Name)
		assert.Equal(t, 1, col.Fields[1].Ordinal)
		require.Len(t, col.Templates, 2)
		assert.Contains(t, col.Templates[1].Raw, "{{Back}}")
		require.Len(t, col.Notes, 2)
		assert.Equal(t, []string{`<img src="cat.png">`, "[sound:a.mp3]"}, col.Notes[0].Fields)
		require.Len(t, col.Cards, 3)
		assert.Equal(t, int64(42), col.Cards[2].Due)
	}
}

func TestProbe_LegacyFallback(t *testing.T) {
	d := testutil.Deck{
		Layout:       testutil.LayoutLegacy,
		ShortColumns: true,
		Notetypes: []testutil.Notetype{{
			ID: 1342697561419, Name: "Basic", Fields: []string{"Question", "Answer"},
			Templates: []testutil.Template{{Q: "{{Question}}", A: "{{Answer}}"}},
			CSS:       ".card {}",
		}},
		Notes: []models.Note{{ID: 5, GUID: "x", NotetypeID: 1342697561419, Fields: []string{"q", "a"}}},
	}
	r := openDeck(t, d)
	require.Equal(t, models.SchemaLegacy, r.Layout().Variant)

	nts, err := r.Notetypes(context.Background())
	require.NoError(t, err)
	require.Len(t, nts, 1)
	assert.Equal(t, int64(1342697561419), nts[0].ID)
	assert.Equal(t, "Basic", nts[0].Name)
	assert.Contains(t, nts[0].Config, `"css"`)

	fields, err := r.Fields(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, models.Field{ID: 0, NotetypeID: 1342697561419, Name: "Question", Ordinal: 0}, fields[0])
	assert.Equal(t, models.Field{ID: 1, NotetypeID: 1342697561419, Name: "Answer", Ordinal: 1}, fields[1])

	tmpls, err := r.TemplatesOf(context.Background(), 1342697561419)
	require.NoError(t, err)
	require.Len(t, tmpls, 1)
	assert.Equal(t, "{{Question}}", tmpls[0].QuestionFormat)
}

func TestProbe_MinimalFallback(t *testing.T) {
	cases := map[string]testutil.Deck{
		"empty document":      {Layout: testutil.LayoutLegacy, LegacyModels: testutil.StrPtr("")},
		"unparsable document": {Layout: testutil.LayoutLegacy, LegacyModels: testutil.StrPtr("{not json")},
		"empty object":        {Layout: testutil.LayoutLegacy, LegacyModels: testutil.StrPtr("{}")},
		"no metadata at all":  {Layout: testutil.LayoutNotesOnly},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			d.Notes = []models.Note{{ID: 1, GUID: "g", NotetypeID: 99, Fields: []string{"only"}}}
			r := openDeck(t, d)
			assert.Equal(t, models.SchemaMinimal, r.Layout().Variant)

			col, err := r.Collection(context.Background())
			require.NoError(t, err)
			assert.Len(t, col.Notes, 1)
			assert.Empty(t, col.Notetypes)
			assert.Empty(t, col.Fields)
		})
	}
}

func TestProbe_NoNotesRelation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sqlite")
	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = conn.Exec(`CREATE TABLE other (id INTEGER)`)
	require.NoError(t, err)
	conn.Close()

	s, err := snapshot.Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	_, err = Probe(context.Background(), s.Conn(), quietLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDatabase))
}

func TestFirstCard_LowestOrdinal(t *testing.T) {
	d := testutil.BasicDeck(testutil.LayoutModern)
	d.Cards = []models.Card{{ID: 30, NoteID: 1, Ordinal: 1}, {ID: 31, NoteID: 1, Ordinal: 0}}
	r := openDeck(t, d)

	c, err := r.FirstCard(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(31), c.ID)

	c, err = r.FirstCard(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNoteAndCount(t *testing.T) {
	r := openDeck(t, testutil.BasicDeck(testutil.LayoutModern))

	n, err := r.Note(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "g2", n.GUID)

	missing, err := r.Note(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, missing)

	count, err := r.CountNotes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNote_StepErrorIsDatabaseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.sqlite")
	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	// abs() of the smallest integer overflows while the row is stepped.
	_, err = conn.Exec(`
		CREATE TABLE notes_data (id INTEGER PRIMARY KEY, guid TEXT, mid INTEGER, flds TEXT);
		INSERT INTO notes_data VALUES (404, 'g', 1, 'x');
		CREATE VIEW notes AS
			SELECT id, guid, mid, CAST(abs(-9223372036854775808) AS TEXT) AS flds FROM notes_data;`)
	require.NoError(t, err)
	conn.Close()

	s, err := snapshot.Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	layout, err := Probe(context.Background(), s.Conn(), quietLogger())
	require.NoError(t, err)

	_, err = NewReader(s.Conn(), layout).Note(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDatabase))
}

func TestParseLegacyModels_SkipsBadKeys(t *testing.T) {
	got, err := parseLegacyModels(`{"12": {"name": "A", "flds": [{"name": "F"}]}, "abc": {"name": "B"}}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(12), got[0].id)
	assert.Equal(t, "A", got[0].Name)
}
