package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/arbor/internal/autocomplete"
	"github.com/starford/arbor/internal/checksum"
	"github.com/starford/arbor/internal/noteservice"
	"github.com/starford/arbor/internal/search"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// boolParam accepts 1/true/yes; anything else is false.
func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// notModified sets the ETag header and reports whether the client copy is
// still current.
func notModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", etag)
	for _, candidate := range strings.Split(r.Header.Get("If-None-Match"), ",") {
		if strings.TrimSpace(candidate) == etag {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}

// Search handles GET /api/search.
//
//	@Summary		Search notes with the query language
//	@Tags			search
//	@Produce		json
//	@Param			q				query		string	true	"Search query"
//	@Param			fastSearch		query		bool	false	"Skip content and fuzzy matching"
//	@Param			ancestorNoteId	query		string	false	"Restrict to a subtree"
//	@Param			includeHidden	query		bool	false	"Include the hidden subtree"
//	@Param			limit			query		int		false	"Max results"
//	@Success		200				{object}	SearchResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	limit, _ := strconv.Atoi(q.Get("limit"))
	opts := search.Options{
		FastSearch:     boolParam(r, "fastSearch"),
		AncestorNoteID: q.Get("ancestorNoteId"),
		IncludeHidden:  boolParam(r, "includeHidden"),
		Limit:          limit,
	}

	results, gen, err := h.svc.Search(r.Context(), query, opts)
	if err != nil {
		writeError(w, r, "search", err)
		return
	}
	etag := checksum.ETag(gen, "search", query,
		strconv.FormatBool(opts.FastSearch), opts.AncestorNoteID,
		strconv.FormatBool(opts.IncludeHidden), strconv.Itoa(opts.Limit))
	if notModified(w, r, etag) {
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Autocomplete handles GET /api/autocomplete.
//
//	@Summary		Suggest notes for jump-to and link dialogs
//	@Tags			search
//	@Produce		json
//	@Param			q				query		string	false	"Typed text; empty returns recent notes"
//	@Param			activeNoteId	query		string	false	"Note excluded from recent notes"
//	@Param			hoistedNoteId	query		string	false	"Restrict to a subtree"
//	@Param			fastSearch		query		bool	false	"Skip content and fuzzy matching"
//	@Success		200				{object}	AutocompleteResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/autocomplete [get]
func (h *Handler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := autocomplete.Request{
		Query:         q.Get("q"),
		ActiveNoteID:  q.Get("activeNoteId"),
		HoistedNoteID: q.Get("hoistedNoteId"),
		FastSearch:    boolParam(r, "fastSearch"),
	}

	suggestions, gen, err := h.svc.Autocomplete(r.Context(), req)
	if err != nil {
		writeError(w, r, "autocomplete", err)
		return
	}
	// History changes without a cache mutation, so the empty query is never
	// served from an ETag.
	if strings.TrimSpace(req.Query) != "" {
		etag := checksum.ETag(gen, "autocomplete", req.Query, req.ActiveNoteID,
			req.HoistedNoteID, strconv.FormatBool(req.FastSearch))
		if notModified(w, r, etag) {
			return
		}
	}
	writeJSON(w, http.StatusOK, AutocompleteResponse{Suggestions: suggestions})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.svc.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, r, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Attributes handles GET /api/notes/{id}/attributes.
//
//	@Summary		Effective attributes of a note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	AttributesResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/attributes [get]
func (h *Handler) Attributes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	attrs, err := h.svc.Attributes(r.Context(), id)
	if err != nil {
		writeError(w, r, "attributes", err)
		return
	}
	writeJSON(w, http.StatusOK, AttributesResponse{NoteID: id, Attributes: attrs})
}

// NotesWithLabel handles GET /api/labels/{name}.
//
//	@Summary		Notes carrying a label, owned or inherited
//	@Tags			notes
//	@Produce		json
//	@Param			name	path		string	true	"Label name"
//	@Param			value	query		string	false	"Exact label value"
//	@Success		200		{object}	LabelResponse
//	@Security		BearerAuth
//	@Router			/labels/{name} [get]
func (h *Handler) NotesWithLabel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var value *string
	if r.URL.Query().Has("value") {
		v := r.URL.Query().Get("value")
		value = &v
	}
	notes, err := h.svc.NotesWithLabel(r.Context(), name, value)
	if err != nil {
		writeError(w, r, "notes with label", err)
		return
	}
	writeJSON(w, http.StatusOK, LabelResponse{Name: name, Notes: notes})
}

// ApplyChanges handles POST /api/changes.
//
//	@Summary		Apply entity changes in order
//	@Tags			changes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ChangesRequest	true	"Changes to apply"
//	@Success		200		{object}	ChangesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/changes [post]
func (h *Handler) ApplyChanges(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req ChangesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	results, err := h.svc.ApplyChanges(r.Context(), req.Changes)
	if err != nil {
		writeError(w, r, "apply changes", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangesResponse{Results: results})
}

// RecordVisit handles POST /api/recent-notes.
//
//	@Summary		Record a note visit for autocomplete history
//	@Tags			notes
//	@Accept			json
//	@Param			body	body	RecentNoteRequest	true	"Visited note"
//	@Success		204		"Visit recorded"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recent-notes [post]
func (h *Handler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RecentNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.RecordVisit(r.Context(), req.NoteID, req.NotePath); err != nil {
		writeError(w, r, "record visit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
