package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/decksmith/internal/deckservice"
	"github.com/starford/decksmith/internal/media"
	"github.com/starford/decksmith/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc     *deckservice.Service
	baseDir string
	mode    media.Mode
}

// NewHandler creates a new Handler. Decks are extracted into and served from
// baseDir; mode is the media mode used when a request does not name one.
func NewHandler(svc *deckservice.Service, baseDir string, mode media.Mode) *Handler {
	return &Handler{svc: svc, baseDir: baseDir, mode: mode}
}

func (h *Handler) mediaMode(requested string) media.Mode {
	if requested == "" {
		return h.mode
	}
	return media.Mode(requested)
}

// deckHash returns the {hash} URL parameter of an extracted deck. It writes
// the error response and returns false when the hash is malformed or unknown.
func (h *Handler) deckHash(w http.ResponseWriter, r *http.Request) (string, bool) {
	hash := strings.ToLower(chi.URLParam(r, "hash"))
	if !deckservice.ValidHash(hash) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid deck hash"))
		return "", false
	}
	if info, err := os.Stat(deckservice.OutputDir(h.baseDir, hash)); err != nil || !info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorBody("deck not found"))
		return "", false
	}
	return hash, true
}

// ExtractDeck handles POST /api/decks.
//
//	@Summary		Extract a deck archive
//	@Tags			decks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ExtractRequest	true	"Archive to extract"
//	@Success		201		{object}	ExtractResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/decks [post]
func (h *Handler) ExtractDeck(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.UploadDeck(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res, err := h.svc.Extract(r.Context(), req.ArchivePath, h.baseDir, h.mediaMode(req.MediaMode))
	if err != nil {
		writeError(w, r, "extract deck", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListDecks handles GET /api/decks.
//
//	@Summary		List extracted decks
//	@Tags			decks
//	@Produce		json
//	@Success		200	{object}	DeckListResponse
//	@Security		BearerAuth
//	@Router			/decks [get]
func (h *Handler) ListDecks(w http.ResponseWriter, r *http.Request) {
	hashes, err := deckservice.Extracted(h.baseDir)
	if err != nil {
		writeError(w, r, "list decks", err)
		return
	}
	decks := make([]DeckSummary, 0, len(hashes))
	for _, hash := range hashes {
		decks = append(decks, DeckSummary{
			Hash:      hash,
			NoteCount: h.svc.CountNotes(r.Context(), deckservice.StorePath(h.baseDir, hash)),
		})
	}
	writeJSON(w, http.StatusOK, DeckListResponse{Decks: decks})
}

// ListNotes handles GET /api/decks/{hash}/notes.
//
//	@Summary		List the notes of an extracted deck
//	@Tags			notes
//	@Produce		json
//	@Param			hash	path		string	true	"Deck content hash"
//	@Success		200		{object}	NoteListResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/decks/{hash}/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.deckHash(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListNotes(r.Context(), deckservice.StorePath(h.baseDir, hash))
	if err != nil {
		writeError(w, r, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ResolveNote handles GET /api/decks/{hash}/notes/{id}.
//
//	@Summary		Resolve a note to its first card's templates and stylesheet
//	@Tags			notes
//	@Produce		json
//	@Param			hash	path		string	true	"Deck content hash"
//	@Param			id		path		int		true	"Note id"
//	@Param			variant	query		string	false	"Container variant label"	Enums(compressed-modern, uncompressed-modern, legacy)
//	@Success		200		{object}	ResolvedNoteResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/decks/{hash}/notes/{id} [get]
func (h *Handler) ResolveNote(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.deckHash(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	variant := models.Variant(r.URL.Query().Get("variant"))
	note, err := h.svc.ResolveNote(r.Context(), deckservice.StorePath(h.baseDir, hash), id, variant)
	if err != nil {
		writeError(w, r, "resolve note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CountNotes handles GET /api/decks/{hash}/count.
//
//	@Summary		Count the notes of an extracted deck
//	@Tags			notes
//	@Produce		json
//	@Param			hash	path		string	true	"Deck content hash"
//	@Success		200		{object}	CountResponse
//	@Security		BearerAuth
//	@Router			/decks/{hash}/count [get]
func (h *Handler) CountNotes(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.deckHash(w, r)
	if !ok {
		return
	}
	n := h.svc.CountNotes(r.Context(), deckservice.StorePath(h.baseDir, hash))
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}
