package deckservice

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/decksmith/internal/apperr"
	"github.com/starford/decksmith/internal/diag"
	"github.com/starford/decksmith/internal/media"
	"github.com/starford/decksmith/internal/models"
	"github.com/starford/decksmith/internal/storage"
	"github.com/starford/decksmith/internal/testutil"
)

func testService() *Service {
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func snapshotTree(t *testing.T, dir string) []storage.Entry {
	t.Helper()
	fs, err := storage.NewFS(dir)
	require.NoError(t, err)
	entries, err := fs.List("")
	require.NoError(t, err)
	return entries
}

func TestExtract_UncompressedModern(t *testing.T) {
	ctx := context.Background()
	svc := testService()
	archivePath := testutil.WriteArchive(t, testutil.BasicDeck(testutil.LayoutModern))
	base := t.TempDir()

	res, err := svc.Extract(ctx, archivePath, base, media.ModeReferenced)
	require.NoError(t, err)

	assert.Equal(t, models.VariantUncompressedModern, res.DetectedVariant)
	assert.Equal(t, "modern", res.Schema)
	assert.Len(t, res.ContentHash, 64)
	assert.Equal(t, filepath.Join(base, res.ContentHash), res.OutputDir)
	assert.Equal(t, 2, res.NoteCount)
	assert.ElementsMatch(t, []string{"cat.png", "a.mp3"}, res.MediaFiles)
	assert.Equal(t, "unused.ogg", res.MediaIndex["2"])
	assert.Contains(t, res.Members, "collection.anki21")

	got, err := os.ReadFile(filepath.Join(res.OutputDir, MediaDir, "cat.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(got))
	_, err = os.Stat(filepath.Join(res.OutputDir, MediaDir, "unused.ogg"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(res.OutputDir, RawDir, "media"))
	assert.NoError(t, err)

	assert.Equal(t, 2, svc.CountNotes(ctx, res.StorePath))
}

func TestExtract_FullModeCompressed(t *testing.T) {
	ctx := context.Background()
	deck := testutil.BasicDeck(testutil.LayoutModern)
	deck.Variant = models.VariantCompressedModern
	deck.CompressMedia = true
	archivePath := testutil.WriteArchive(t, deck)

	res, err := testService().Extract(ctx, archivePath, t.TempDir(), media.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, models.VariantCompressedModern, res.DetectedVariant)
	assert.ElementsMatch(t, []string{"cat.png", "a.mp3", "unused.ogg"}, res.MediaFiles)

	got, err := os.ReadFile(filepath.Join(res.OutputDir, MediaDir, "unused.ogg"))
	require.NoError(t, err)
	assert.Equal(t, "OGGDATA", string(got))
}

func TestExtract_LegacyArchive(t *testing.T) {
	deck := testutil.BasicDeck(testutil.LayoutLegacy)
	deck.Variant = models.VariantLegacy
	archivePath := testutil.WriteArchive(t, deck)

	res, err := testService().Extract(context.Background(), archivePath, t.TempDir(), media.ModeReferenced)
	require.NoError(t, err)
	assert.Equal(t, models.VariantLegacy, res.DetectedVariant)
	assert.Equal(t, "legacy", res.Schema)
	assert.Equal(t, 2, res.NoteCount)
}

func TestExtract_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc := testService()
	archivePath := testutil.WriteArchive(t, testutil.BasicDeck(testutil.LayoutModern))
	base := t.TempDir()

	first, err := svc.Extract(ctx, archivePath, base, media.ModeReferenced)
	require.NoError(t, err)
	before := snapshotTree(t, first.OutputDir)

	mutated := testutil.BasicDeck(testutil.LayoutModern)
	mutated.Extra = map[string][]byte{"stray": []byte("x")}
	other, err := svc.Extract(ctx, testutil.WriteArchive(t, mutated), base, media.ModeFull)
	require.NoError(t, err)
	require.NotEqual(t, first.ContentHash, other.ContentHash)

	// Tamper with the previous output; re-extraction must restore it.
	require.NoError(t, os.WriteFile(filepath.Join(first.OutputDir, "stray.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(first.OutputDir, MediaDir, "cat.png"), []byte("changed"), 0o644))

	second, err := svc.Extract(ctx, archivePath, base, media.ModeReferenced)
	require.NoError(t, err)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, before, snapshotTree(t, second.OutputDir))

	dirs, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, dirs, 2, "staging directories must not survive")
	for _, d := range dirs {
		assert.True(t, ValidHash(d.Name()), d.Name())
	}
}

func TestExtract_BaseDirWithURICharacters(t *testing.T) {
	ctx := context.Background()
	svc := testService()
	archivePath := testutil.WriteArchive(t, testutil.BasicDeck(testutil.LayoutModern))
	parent := t.TempDir()

	for _, name := range []string{"deck#1", "100%41"} {
		base := filepath.Join(parent, name)
		res, err := svc.Extract(ctx, archivePath, base, media.ModeReferenced)
		require.NoError(t, err, name)
		assert.Equal(t, 2, res.NoteCount, name)

		list, err := svc.ListNotes(ctx, res.StorePath)
		require.NoError(t, err, name)
		assert.Len(t, list.Notes, 2, name)
		assert.Equal(t, 2, svc.CountNotes(ctx, res.StorePath), name)
	}

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"deck#1", "100%41"}, names)
}

func TestExtract_Failures(t *testing.T) {
	ctx := context.Background()
	svc := testService()
	dir := t.TempDir()

	_, err := svc.Extract(ctx, filepath.Join(dir, "missing.apkg"), dir, media.ModeReferenced)
	assert.ErrorIs(t, err, apperr.ErrIO)

	notZip := filepath.Join(dir, "bad.apkg")
	require.NoError(t, os.WriteFile(notZip, []byte("not a zip"), 0o644))
	_, err = svc.Extract(ctx, notZip, dir, media.ModeReferenced)
	assert.ErrorIs(t, err, apperr.ErrArchiveFormat)

	noCollection := filepath.Join(dir, "empty.apkg")
	require.NoError(t, os.WriteFile(noCollection, testutil.Zip(t, map[string][]byte{"media": []byte("{}")}), 0o644))
	_, err = svc.Extract(ctx, noCollection, dir, media.ModeReferenced)
	assert.ErrorIs(t, err, apperr.ErrArchiveFormat)

	badFrame := filepath.Join(dir, "frame.apkg")
	require.NoError(t, os.WriteFile(badFrame, testutil.Zip(t, map[string][]byte{
		"meta":               {0x08},
		"collection.anki21b": []byte("garbage"),
	}), 0o644))
	_, err = svc.Extract(ctx, badFrame, dir, media.ModeReferenced)
	assert.ErrorIs(t, err, apperr.ErrDecompression)

	_, err = svc.Extract(ctx, notZip, dir, media.Mode("some"))
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestExtract_MalformedMediaIndexDegrades(t *testing.T) {
	deck := testutil.BasicDeck(testutil.LayoutModern)
	deck.RawMediaIndex = []byte("{not json")

	hub := diag.NewHub()
	var warnings []diag.Event
	sub := hub.Subscribe(func(e diag.Event) { warnings = append(warnings, e) })
	defer sub.Close()
	logger := slog.New(diag.NewHandler(slog.NewTextHandler(io.Discard, nil), hub, nil))

	res, err := NewService(logger).Extract(context.Background(), testutil.WriteArchive(t, deck), t.TempDir(), media.ModeFull)
	require.NoError(t, err)
	assert.Empty(t, res.MediaFiles)
	assert.Empty(t, res.MediaIndex)
	require.NotEmpty(t, warnings)
	assert.Equal(t, "extract: media index unusable", warnings[0].Message)
	assert.NotEmpty(t, warnings[0].RequestID)
}

func extracted(t *testing.T, deck testutil.Deck) string {
	t.Helper()
	res, err := testService().Extract(context.Background(), testutil.WriteArchive(t, deck), t.TempDir(), media.ModeReferenced)
	require.NoError(t, err)
	return res.StorePath
}

func TestListNotes(t *testing.T) {
	store := extracted(t, testutil.BasicDeck(testutil.LayoutModern))

	list, err := testService().ListNotes(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, list.Notes, 2)
	assert.Equal(t, "Basic (and reversed)", list.Notes[0].NotetypeName)
	assert.Equal(t, []string{"Front", "Back"}, list.Notes[0].FieldNames)
	assert.Equal(t, []string{"plain", "text"}, list.Notes[1].Fields)
	assert.Len(t, list.Notetypes, 1)
	assert.Len(t, list.Fields, 2)
	assert.Len(t, list.Cards, 3)

	_, err = testService().ListNotes(context.Background(), filepath.Join(t.TempDir(), "nope.sqlite"))
	assert.ErrorIs(t, err, apperr.ErrIO)
}

func TestListNotes_NotesOnly(t *testing.T) {
	deck := testutil.BasicDeck(testutil.LayoutNotesOnly)
	list, err := testService().ListNotes(context.Background(), extracted(t, deck))
	require.NoError(t, err)
	assert.Equal(t, "minimal", list.Schema)
	require.Len(t, list.Notes, 2)
	assert.Empty(t, list.Notes[0].NotetypeName)
	assert.Empty(t, list.Notetypes)
}

func TestResolveNote(t *testing.T) {
	ctx := context.Background()
	svc := testService()
	store := extracted(t, testutil.BasicDeck(testutil.LayoutModern))

	got, err := svc.ResolveNote(ctx, store, 1, models.VariantUncompressedModern)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Ordinal)
	assert.Equal(t, "{{Front}}", got.QuestionFormat)
	assert.Equal(t, ".card { font-family: arial; }", got.Stylesheet)
	assert.Equal(t, models.VariantUncompressedModern, got.Variant)
	require.NotNil(t, got.Notetype)
	assert.Len(t, got.Fields, 2)

	got, err = svc.ResolveNote(ctx, store, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Ordinal)
	assert.Equal(t, "{{Back}}", got.QuestionFormat)

	_, err = svc.ResolveNote(ctx, store, 999, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.True(t, IsNotFound(err))

	_, err = svc.ResolveNote(ctx, store, 1, models.Variant("weird"))
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestResolveNote_FallsBackToFirstTemplate(t *testing.T) {
	deck := testutil.BasicDeck(testutil.LayoutModern)
	deck.Notetypes[0].Templates = deck.Notetypes[0].Templates[:1]
	store := extracted(t, deck)

	got, err := testService().ResolveNote(context.Background(), store, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Ordinal)
	assert.Equal(t, "{{Front}}", got.QuestionFormat)
	assert.Equal(t, "{{FrontSide}}<hr id=answer>{{Back}}", got.AnswerFormat)
}

func TestResolveNote_LegacyAndRawTemplates(t *testing.T) {
	ctx := context.Background()

	legacy := testutil.BasicDeck(testutil.LayoutLegacy)
	legacy.Variant = models.VariantLegacy
	got, err := testService().ResolveNote(ctx, extracted(t, legacy), 1, models.VariantLegacy)
	require.NoError(t, err)
	assert.Equal(t, "{{Front}}", got.QuestionFormat)
	assert.Equal(t, ".card { font-family: arial; }", got.Stylesheet)

	raw := testutil.BasicDeck(testutil.LayoutModern)
	raw.Notetypes[0].Templates = []testutil.Template{{Ordinal: 0, Raw: "{{Front}}\x1f{{Back}}"}}
	raw.Notetypes[0].Config = ".card {}\n\\documentclass{article}"
	got, err = testService().ResolveNote(ctx, extracted(t, raw), 1, "")
	require.NoError(t, err)
	assert.Equal(t, "{{Front}}", got.QuestionFormat)
	assert.Equal(t, "{{Back}}", got.AnswerFormat)
	assert.Equal(t, ".card {}", got.Stylesheet)
}

func TestResolveNote_CardWithoutNote(t *testing.T) {
	deck := testutil.BasicDeck(testutil.LayoutModern)
	deck.Cards = append(deck.Cards, models.Card{ID: 30, NoteID: 77, Ordinal: 0})

	got, err := testService().ResolveNote(context.Background(), extracted(t, deck), 77, "")
	require.NoError(t, err)
	assert.Equal(t, int64(77), got.Note.ID)
	assert.Nil(t, got.Notetype)
	assert.Empty(t, got.QuestionFormat)
}

func TestCountNotes_Failure(t *testing.T) {
	assert.Equal(t, 0, testService().CountNotes(context.Background(), filepath.Join(t.TempDir(), "missing.sqlite")))
}

func TestLayoutHelpers(t *testing.T) {
	base := t.TempDir()
	hashes, err := Extracted(filepath.Join(base, "missing"))
	require.NoError(t, err)
	assert.Empty(t, hashes)

	res, err := testService().Extract(context.Background(),
		testutil.WriteArchive(t, testutil.BasicDeck(testutil.LayoutModern)), base, media.ModeReferenced)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(base, "not-a-hash"), 0o755))

	hashes, err = Extracted(base)
	require.NoError(t, err)
	assert.Equal(t, []string{res.ContentHash}, hashes)
	assert.True(t, ValidHash(res.ContentHash))
	assert.False(t, ValidHash("../etc"))
	assert.Equal(t, res.StorePath, StorePath(base, res.ContentHash))
	assert.Equal(t, res.OutputDir, OutputDir(base, res.ContentHash))
}
