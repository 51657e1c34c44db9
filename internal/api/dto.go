package api

import (
	"github.com/starford/arbor/internal/autocomplete"
	"github.com/starford/arbor/internal/changes"
	"github.com/starford/arbor/internal/noteservice"
	"github.com/starford/arbor/internal/search"
)

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// AttributeView is one effective attribute (aliased from the domain layer).
type AttributeView = noteservice.AttributeView

// NoteSummary is a lightweight list item (aliased from the domain layer).
type NoteSummary = noteservice.NoteSummary

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []search.Result `json:"results" validate:"required"`
}

// AutocompleteResponse wraps autocomplete suggestions.
type AutocompleteResponse struct {
	Suggestions []autocomplete.Suggestion `json:"suggestions" validate:"required"`
}

// AttributesResponse wraps the effective attributes of a note.
type AttributesResponse struct {
	NoteID     string          `json:"noteId" example:"abc123" validate:"required"`
	Attributes []AttributeView `json:"attributes" validate:"required"`
}

// LabelResponse wraps the notes carrying a label.
type LabelResponse struct {
	Name  string        `json:"name" example:"todo" validate:"required"`
	Notes []NoteSummary `json:"notes" validate:"required"`
}

// ChangesRequest is the request body for applying changes.
type ChangesRequest struct {
	Changes []changes.Event `json:"changes" validate:"required"`
}

// ChangesResponse reports per-change outcomes, in request order.
type ChangesResponse struct {
	Results []changes.Result `json:"results" validate:"required"`
}

// RecentNoteRequest is the request body for recording a visit.
type RecentNoteRequest struct {
	NoteID   string `json:"noteId" example:"abc123" validate:"required"`
	NotePath string `json:"notePath,omitempty" example:"root/work/abc123"`
}
