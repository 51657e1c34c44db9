// Package noteservice is the read/write facade shared by the HTTP API and
// the MCP server.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/autocomplete"
	"github.com/starford/arbor/internal/changes"
	"github.com/starford/arbor/internal/checksum"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/models"
	"github.com/starford/arbor/internal/search"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	NoteID       string          `json:"noteId"`
	Title        string          `json:"title"`
	Type         models.NoteType `json:"type"`
	Mime         string          `json:"mime"`
	IsProtected  bool            `json:"isProtected"`
	NotePath     []string        `json:"notePath"`
	PathTitle    string          `json:"pathTitle"`
	Icon         string          `json:"icon"`
	ParentIDs    []string        `json:"parentNoteIds"`
	ChildIDs     []string        `json:"childNoteIds"`
	Content      string          `json:"content"`
	Checksum     string          `json:"checksum"`
	DateCreated  time.Time       `json:"dateCreated"`
	DateModified time.Time       `json:"dateModified"`
}

// AttributeView is one effective attribute of a note.
type AttributeView struct {
	AttributeID   string               `json:"attributeId"`
	OwnerNoteID   string               `json:"ownerNoteId"`
	Type          models.AttributeType `json:"type"`
	Name          string               `json:"name"`
	Value         string               `json:"value"`
	IsInheritable bool                 `json:"isInheritable"`
	Origin        string               `json:"origin"`
}

// NoteSummary is a lightweight list item.
type NoteSummary struct {
	NoteID    string `json:"noteId"`
	Title     string `json:"title"`
	PathTitle string `json:"pathTitle"`
}

// Contents reads note bodies.
type Contents interface {
	NoteContent(ctx context.Context, noteID string) (string, error)
}

// History records note visits.
type History interface {
	AddRecentNote(ctx context.Context, noteID, notePath string) error
}

// Service coordinates the graph cache, search, autocomplete and the change
// applier.
type Service struct {
	cache        *graph.Cache
	contents     Contents
	history      History
	search       *search.Service
	autocomplete *autocomplete.Service
	applier      *changes.Applier
}

// NewService creates a new note service.
func NewService(cache *graph.Cache, contents Contents, history History, searchSvc *search.Service, ac *autocomplete.Service, applier *changes.Applier) *Service {
	return &Service{
		cache:        cache,
		contents:     contents,
		history:      history,
		search:       searchSvc,
		autocomplete: ac,
		applier:      applier,
	}
}

// Generation returns the cache generation, used for response ETags.
func (s *Service) Generation() uint64 {
	return s.cache.Generation()
}

// GetNote returns a note with its tree position and content. Protected notes
// are returned without title or content.
func (s *Service) GetNote(ctx context.Context, id string) (*NoteDetail, error) {
	var d *NoteDetail
	err := s.cache.View(func(snap *graph.Snapshot) error {
		n, ok := snap.Note(id)
		if !ok || n.IsDeleted {
			return fmt.Errorf("noteservice: note %q: %w", id, apperr.ErrNotFound)
		}
		path := snap.NotePath(id)
		d = &NoteDetail{
			NoteID:       n.ID,
			Title:        n.DisplayTitle(),
			Type:         n.Type,
			Mime:         n.Mime,
			IsProtected:  n.IsProtected,
			NotePath:     nonNilSlice(path),
			PathTitle:    snap.PathTitle(path),
			Icon:         snap.NoteIcon(id),
			DateCreated:  n.DateCreated,
			DateModified: n.DateModified,
		}
		for _, b := range snap.ParentBranches(id) {
			d.ParentIDs = append(d.ParentIDs, b.ParentNoteID)
		}
		for _, b := range snap.ChildBranches(id) {
			d.ChildIDs = append(d.ChildIDs, b.NoteID)
		}
		d.ParentIDs = nonNilSlice(d.ParentIDs)
		d.ChildIDs = nonNilSlice(d.ChildIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !d.IsProtected && d.Type.Capabilities().HasContent {
		content, err := s.contents.NoteContent(ctx, id)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("noteservice: content %q: %w", id, err)
		}
		d.Content = content
	}
	d.Checksum = checksum.Sum([]byte(d.Content))
	return d, nil
}

// Attributes returns the effective attributes of a note.
func (s *Service) Attributes(_ context.Context, id string) ([]AttributeView, error) {
	if _, ok := s.cache.GetNote(id); !ok {
		return nil, fmt.Errorf("noteservice: note %q: %w", id, apperr.ErrNotFound)
	}
	attrs := s.cache.EffectiveAttributes(id)
	out := make([]AttributeView, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, AttributeView{
			AttributeID:   a.ID,
			OwnerNoteID:   a.NoteID,
			Type:          a.Type,
			Name:          a.Name,
			Value:         a.Value,
			IsInheritable: a.IsInheritable,
			Origin:        a.Origin.String(),
		})
	}
	return out, nil
}

// NotesWithLabel lists notes carrying label name, optionally with value.
func (s *Service) NotesWithLabel(_ context.Context, name string, value *string) ([]NoteSummary, error) {
	if name == "" {
		return nil, apperr.Validation("", "label name is required")
	}
	var ids []string
	if value == nil {
		ids = s.cache.NotesWithLabel(name)
	} else {
		ids = s.cache.NotesWithLabelValue(name, *value)
	}

	out := make([]NoteSummary, 0, len(ids))
	_ = s.cache.View(func(snap *graph.Snapshot) error {
		for _, id := range ids {
			n, ok := snap.Note(id)
			if !ok {
				continue
			}
			out = append(out, NoteSummary{
				NoteID:    id,
				Title:     n.DisplayTitle(),
				PathTitle: snap.PathTitle(snap.NotePath(id)),
			})
		}
		return nil
	})
	return out, nil
}

// Search runs a query and returns the results with the generation they were
// computed against.
func (s *Service) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, uint64, error) {
	gen := s.cache.Generation()
	results, err := s.search.Search(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(results), gen, nil
}

// Autocomplete returns suggestions with the generation they were computed
// against.
func (s *Service) Autocomplete(ctx context.Context, req autocomplete.Request) ([]autocomplete.Suggestion, uint64, error) {
	gen := s.cache.Generation()
	out, err := s.autocomplete.Autocomplete(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(out), gen, nil
}

// ApplyChanges hands events to the change applier.
func (s *Service) ApplyChanges(ctx context.Context, events []changes.Event) ([]changes.Result, error) {
	if len(events) == 0 {
		return nil, apperr.Validation("", "at least one change is required")
	}
	return s.applier.Apply(ctx, events)
}

// RecordVisit adds a note to the visit history. An empty notePath is
// replaced by the note's best path.
func (s *Service) RecordVisit(ctx context.Context, noteID, notePath string) error {
	if noteID == "" {
		return apperr.Validation("", "noteId is required")
	}
	var path []string
	_ = s.cache.View(func(snap *graph.Snapshot) error {
		path = snap.NotePath(noteID)
		return nil
	})
	if path == nil {
		return fmt.Errorf("noteservice: note %q: %w", noteID, apperr.ErrNotFound)
	}
	if notePath == "" {
		notePath = strings.Join(path, "/")
	}
	return s.history.AddRecentNote(ctx, noteID, notePath)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
