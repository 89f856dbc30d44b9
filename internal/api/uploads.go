package api

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/decksmith/internal/deckservice"
	"github.com/starford/decksmith/internal/storage"
)

const maxUploadBytes = 512 << 20 // 512 MB

// ServeMedia handles GET /api/decks/{hash}/media/*. Names may contain
// subdirectories; anything resolving outside the media directory is rejected.
func (h *Handler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.deckHash(w, r)
	if !ok {
		return
	}
	// chi matches on RawPath when it is set, leaving the param escaped.
	name := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if r.URL.RawPath != "" {
		decoded, err := url.PathUnescape(name)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid filename"))
			return
		}
		name = decoded
	}
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("filename is required"))
		return
	}
	mediaDir := deckservice.MediaPath(h.baseDir, hash)
	if _, err := os.Stat(mediaDir); err != nil {
		http.NotFound(w, r)
		return
	}
	mediaFS, err := storage.NewFS(mediaDir)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	abs, err := mediaFS.Abs(name)
	if err != nil || abs == mediaFS.Root() {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid filename"))
		return
	}
	if info, statErr := os.Stat(abs); statErr != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// UploadDeck handles POST /api/decks with multipart/form-data: field "file"
// carries the archive, optional field "media_mode" selects the media mode.
func (h *Handler) UploadDeck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	mode := h.mediaMode(r.FormValue("media_mode"))
	if !mode.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody("media_mode: must be a valid value"))
		return
	}

	tmp, err := os.CreateTemp("", "decksmith-upload-*.apkg")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to buffer upload"))
		return
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, file)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to buffer upload"))
		return
	}

	res, err := h.svc.Extract(r.Context(), tmp.Name(), h.baseDir, mode)
	if err != nil {
		writeError(w, r, "upload deck", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

