package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/decksmith/internal/deckservice"
	"github.com/starford/decksmith/internal/media"
	"github.com/starford/decksmith/internal/models"
)

// ExtractRequest is the JSON request body for extracting an archive on the
// server's filesystem.
type ExtractRequest struct {
	ArchivePath string `json:"archive_path" example:"/data/inbox/french.apkg" validate:"required"`
	MediaMode   string `json:"media_mode,omitempty" example:"referenced"`
}

// Validate validates the request.
func (r *ExtractRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ArchivePath, validation.Required),
		validation.Field(&r.MediaMode, validation.In(string(media.ModeReferenced), string(media.ModeFull))),
	)
}

// ExtractResponse is returned after a successful extraction.
type ExtractResponse = deckservice.ExtractResult

// DeckSummary is one extracted deck in a listing.
type DeckSummary struct {
	Hash      string `json:"hash" example:"9f86d081884c7d65..." validate:"required"`
	NoteCount int    `json:"note_count" example:"42"`
}

// DeckListResponse wraps extracted decks.
type DeckListResponse struct {
	Decks []DeckSummary `json:"decks" validate:"required"`
}

// NoteListResponse is the full logical model of one deck.
type NoteListResponse = deckservice.Listing

// ResolvedNoteResponse is a note resolved to its first card.
type ResolvedNoteResponse = models.ResolvedNote

// CountResponse wraps a note count.
type CountResponse struct {
	Count int `json:"count" example:"42"`
}
