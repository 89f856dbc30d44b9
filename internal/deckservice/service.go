// Package deckservice is the request surface exposed to host applications:
// extraction, listing, per-note resolution and counting.
//
// Every call is synchronous and request-scoped. Stores are opened per call
// and closed before returning; nothing is cached between calls.
package deckservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/starford/decksmith/internal/apperr"
	"github.com/starford/decksmith/internal/archive"
	"github.com/starford/decksmith/internal/assembler"
	"github.com/starford/decksmith/internal/checksum"
	"github.com/starford/decksmith/internal/diag"
	"github.com/starford/decksmith/internal/media"
	"github.com/starford/decksmith/internal/models"
	"github.com/starford/decksmith/internal/schema"
	"github.com/starford/decksmith/internal/snapshot"
	"github.com/starford/decksmith/internal/storage"
	"github.com/starford/decksmith/internal/templates"
)

// Output tree layout under <base>/<contentHash>/.
const (
	StoreFile  = "collection.sqlite"
	RawDir     = "raw"
	MediaDir   = "media"
	stagingPfx = ".staging-"
)

// ExtractResult describes one completed extraction.
type ExtractResult struct {
	OutputDir       string            `json:"output_dir"`
	StorePath       string            `json:"store_path"`
	ContentHash     string            `json:"content_hash"`
	MediaIndex      map[string]string `json:"media_index"`
	DetectedVariant models.Variant    `json:"detected_variant"`
	Schema          string            `json:"schema"`
	Members         []string          `json:"members"`
	NoteCount       int               `json:"note_count"`
	MediaFiles      []string          `json:"media_files"`
	Skipped         []media.Skipped   `json:"skipped,omitempty"`
}

// Listing is the full logical model of one store.
type Listing struct {
	Schema    string            `json:"schema"`
	Notes     []models.NoteView `json:"notes"`
	Notetypes []models.Notetype `json:"notetypes"`
	Fields    []models.Field    `json:"fields"`
	Cards     []models.Card     `json:"cards"`
}

// Service implements the request surface.
type Service struct {
	logger *slog.Logger
	flight singleflight.Group
}

// NewService creates a service that reports through logger. Wire the logger
// through diag.NewHandler to make degradations observable on a diagnostic hub.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

func (s *Service) requestLogger(op string) *slog.Logger {
	return s.logger.With(slog.String(diag.RequestIDKey, uuid.NewString()), slog.String("op", op))
}

// Extract unpacks the archive at archivePath into outputBaseDir/<contentHash>.
// Any previous tree for the same hash is replaced, so repeated calls on the
// same bytes converge to the same output.
func (s *Service) Extract(ctx context.Context, archivePath, outputBaseDir string, mode media.Mode) (*ExtractResult, error) {
	if mode == "" {
		mode = media.ModeReferenced
	}
	if !mode.Valid() {
		return nil, apperr.E(apperr.KindInvalid, "extract", fmt.Errorf("unknown media mode %q", mode))
	}
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, apperr.E(apperr.KindIO, "extract: read archive", err)
	}
	hash := checksum.Sum(data)

	// Concurrent hosts (HTTP, inbox) may submit the same content at once.
	v, err, _ := s.flight.Do(outputBaseDir+"\x00"+hash+"\x00"+string(mode), func() (any, error) {
		return s.extract(ctx, data, hash, outputBaseDir, mode)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ExtractResult), nil
}

func (s *Service) extract(ctx context.Context, data []byte, hash, baseDir string, mode media.Mode) (*ExtractResult, error) {
	log := s.requestLogger("extract")
	log.Info("extract: started", slog.String("content_hash", hash), slog.String("media_mode", string(mode)))

	a, err := archive.Open(data)
	if err != nil {
		return nil, err
	}

	base, err := storage.NewFS(baseDir)
	if err != nil {
		return nil, apperr.E(apperr.KindIO, "extract: output dir", err)
	}
	staging := stagingPfx + uuid.NewString()
	committed := false
	defer func() {
		if !committed {
			_ = base.RemoveAll(staging)
		}
	}()

	res := &ExtractResult{ContentHash: hash, DetectedVariant: a.Variant()}

	for _, name := range a.Names() {
		member, err := a.Read(name)
		if err != nil {
			log.Warn("extract: member unreadable", slog.String("member", name), slog.String("error", err.Error()))
			continue
		}
		if err := base.Write(path.Join(staging, RawDir, name), member); err != nil {
			log.Warn("extract: member not written", slog.String("member", name), slog.String("error", err.Error()))
			continue
		}
		res.Members = append(res.Members, name)
	}

	storeBytes, err := snapshot.Decode(a)
	if err != nil {
		return nil, err
	}
	stagedStore, err := base.Abs(path.Join(staging, StoreFile))
	if err != nil {
		return nil, apperr.E(apperr.KindIO, "extract: store path", err)
	}
	if err := snapshot.Materialize(stagedStore, storeBytes); err != nil {
		return nil, err
	}

	notes, layout, err := s.readNotes(ctx, stagedStore, log)
	if err != nil {
		return nil, err
	}
	res.NoteCount = len(notes)
	res.Schema = layout.Variant.String()

	idx := media.NewIndex(nil)
	if a.Has(archive.MemberMediaIndex) {
		raw, err := a.Read(archive.MemberMediaIndex)
		if err == nil {
			idx, err = media.ParseIndex(raw)
		}
		if err != nil {
			log.Warn("extract: media index unusable", slog.String("error", err.Error()))
		}
	}
	res.MediaIndex = idx.Map()

	mres := media.Extract(a, idx, mode, notes, base, path.Join(staging, MediaDir), log)
	res.MediaFiles = mres.Files
	res.Skipped = mres.Skipped

	if err := base.RemoveAll(hash); err != nil {
		return nil, apperr.E(apperr.KindIO, "extract: purge previous output", err)
	}
	if err := base.Move(staging, hash); err != nil {
		return nil, apperr.E(apperr.KindIO, "extract: commit output", err)
	}
	committed = true

	res.OutputDir, _ = base.Abs(hash)
	res.StorePath, _ = base.Abs(path.Join(hash, StoreFile))

	log.Info("extract: done",
		slog.String("content_hash", hash),
		slog.String("variant", string(res.DetectedVariant)),
		slog.String("schema", res.Schema),
		slog.Int("notes", res.NoteCount),
		slog.Int("media_files", len(res.MediaFiles)))
	return res, nil
}

// readNotes opens the staged store just long enough to read its notes.
func (s *Service) readNotes(ctx context.Context, storePath string, log *slog.Logger) ([]models.Note, *schema.Layout, error) {
	store, err := snapshot.Open(ctx, storePath)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	layout, err := schema.Probe(ctx, store.Conn(), log)
	if err != nil {
		return nil, nil, err
	}
	notes, err := schema.NewReader(store.Conn(), layout).Notes(ctx)
	if err != nil {
		return nil, nil, err
	}
	return notes, layout, nil
}

// withReader opens a store, probes it once and hands a reader to fn.
func (s *Service) withReader(ctx context.Context, storePath string, log *slog.Logger, fn func(*schema.Reader) error) error {
	store, err := snapshot.Open(ctx, storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	layout, err := schema.Probe(ctx, store.Conn(), log)
	if err != nil {
		return err
	}
	return fn(schema.NewReader(store.Conn(), layout))
}

// ListNotes returns every note joined with its notetype, plus the raw
// notetype, field and card records.
func (s *Service) ListNotes(ctx context.Context, storePath string) (*Listing, error) {
	log := s.requestLogger("list_notes")
	var out *Listing
	err := s.withReader(ctx, storePath, log, func(r *schema.Reader) error {
		col, err := r.Collection(ctx)
		if err != nil {
			return err
		}
		out = &Listing{
			Schema:    col.Schema.String(),
			Notes:     nonNilSlice(assembler.Assemble(col)),
			Notetypes: nonNilSlice(col.Notetypes),
			Fields:    nonNilSlice(col.Fields),
			Cards:     nonNilSlice(col.Cards),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug("list: done", slog.Int("notes", len(out.Notes)))
	return out, nil
}

// ResolveNote resolves the first card of a note to its template formats and
// stylesheet. It fails with a not-found error only when neither a note nor a
// card exists for noteID. variant is validated and echoed; it never selects
// the schema path.
func (s *Service) ResolveNote(ctx context.Context, storePath string, noteID int64, variant models.Variant) (*models.ResolvedNote, error) {
	if variant != "" && !variant.Valid() {
		return nil, apperr.E(apperr.KindInvalid, "resolve note", fmt.Errorf("unknown variant %q", variant))
	}
	log := s.requestLogger("resolve_note")

	var out *models.ResolvedNote
	err := s.withReader(ctx, storePath, log, func(r *schema.Reader) error {
		note, err := r.Note(ctx, noteID)
		if err != nil {
			return err
		}
		card, err := r.FirstCard(ctx, noteID)
		if err != nil {
			return err
		}
		if note == nil && card == nil {
			return apperr.E(apperr.KindNotFound, "resolve note", fmt.Errorf("note %d", noteID))
		}
		if note == nil {
			log.Warn("resolve: card without note", slog.Int64("note_id", noteID))
			note = &models.Note{ID: noteID, Fields: []string{}}
		}
		ordinal := 0
		if card != nil {
			ordinal = card.Ordinal
		}

		nt, err := r.Notetype(ctx, note.NotetypeID)
		if err != nil {
			return err
		}
		fields, err := r.FieldsOf(ctx, note.NotetypeID)
		if err != nil {
			return err
		}
		tmpls, err := r.TemplatesOf(ctx, note.NotetypeID)
		if err != nil {
			return err
		}

		res, err := templates.Resolve(tmpls, nt, ordinal)
		if err != nil {
			log.Warn("resolve: stylesheet degraded", slog.Int64("note_id", noteID), slog.String("error", err.Error()))
		}
		if nt == nil {
			log.Warn("resolve: notetype missing", slog.Int64("note_id", noteID), slog.Int64("notetype_id", note.NotetypeID))
		}

		var nts []models.Notetype
		if nt != nil {
			nts = []models.Notetype{*nt}
		}
		out = &models.ResolvedNote{
			Note:           assembler.NewCatalog(nts, fields).View(*note),
			Notetype:       nt,
			Fields:         nonNilSlice(fields),
			Ordinal:        res.Ordinal,
			Variant:        variant,
			QuestionFormat: res.QuestionFormat,
			AnswerFormat:   res.AnswerFormat,
			Stylesheet:     res.Stylesheet,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountNotes returns the number of notes in the store, or 0 on any failure.
func (s *Service) CountNotes(ctx context.Context, storePath string) int {
	log := s.requestLogger("count_notes")
	var n int
	err := s.withReader(ctx, storePath, log, func(r *schema.Reader) error {
		var err error
		n, err = r.CountNotes(ctx)
		return err
	})
	if err != nil {
		log.Warn("count: failed", slog.String("store", storePath), slog.String("error", err.Error()))
		return 0
	}
	return n
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
