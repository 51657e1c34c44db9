// Package autocomplete turns search results and visit history into note
// suggestions for jump-to and link dialogs.
package autocomplete

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/search"
	"github.com/starford/arbor/internal/store"
)

// RecentNotes is the visit history source.
type RecentNotes interface {
	RecentNotes(ctx context.Context, limit int) ([]store.RecentNote, error)
}

// Request is one autocomplete call.
type Request struct {
	Query string
	// ActiveNoteID is left out of history suggestions.
	ActiveNoteID string
	// HoistedNoteID limits suggestions to that subtree.
	HoistedNoteID string
	// FastSearch skips content and fuzzy matching for typed queries.
	FastSearch bool
}

// Suggestion is one autocomplete entry.
type Suggestion struct {
	NoteID    string `json:"noteId"`
	NotePath  string `json:"notePath"`
	Title     string `json:"title"`
	PathTitle string `json:"pathTitle"`
	Icon      string `json:"icon"`
}

// Service answers autocomplete requests.
type Service struct {
	search       *search.Service
	recent       RecentNotes
	logger       *slog.Logger
	limit        int
	historyLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithLimit caps suggestions for typed queries.
func WithLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithHistoryLimit caps suggestions for the empty query.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// New returns an autocomplete service.
func New(searchSvc *search.Service, recent RecentNotes, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		search:       searchSvc,
		recent:       recent,
		logger:       logger,
		limit:        200,
		historyLimit: 50,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Autocomplete returns suggestions for req. An empty query lists recently
// visited notes, newest first; anything else is searched and ranked.
func (s *Service) Autocomplete(ctx context.Context, req Request) ([]Suggestion, error) {
	start := time.Now()
	var (
		out  []Suggestion
		err  error
		mode string
	)
	if strings.TrimSpace(req.Query) == "" {
		mode = "history"
		out, err = s.history(ctx, req)
	} else {
		mode = "search"
		out, err = s.query(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if elapsed := time.Since(start); elapsed > s.search.SlowQueryThreshold() {
		s.logger.Warn("autocomplete: slow query",
			slog.String("mode", mode),
			slog.String("query", req.Query),
			slog.Duration("elapsed", elapsed),
			slog.Int("results", len(out)))
	}
	return out, nil
}

func (s *Service) query(ctx context.Context, req Request) ([]Suggestion, error) {
	results, err := s.search.Search(ctx, req.Query, search.Options{
		FastSearch:     req.FastSearch,
		AncestorNoteID: req.HoistedNoteID,
		IncludeHidden:  true,
		Limit:          s.limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, len(results))
	for _, r := range results {
		out = append(out, Suggestion{
			NoteID:    r.NoteID,
			NotePath:  strings.Join(r.NotePath, "/"),
			Title:     r.Title,
			PathTitle: r.PathTitle,
			Icon:      r.Icon,
		})
	}
	return out, nil
}

func (s *Service) history(ctx context.Context, req Request) ([]Suggestion, error) {
	if s.recent == nil {
		return nil, nil
	}
	recent, err := s.recent.RecentNotes(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("autocomplete: recent notes: %w", err)
	}

	hoisted := req.HoistedNoteID
	if hoisted == graph.RootID {
		hoisted = ""
	}

	var out []Suggestion
	err = s.search.Cache().View(func(snap *graph.Snapshot) error {
		for _, r := range recent {
			if len(out) >= s.historyLimit {
				break
			}
			if r.NoteID == req.ActiveNoteID {
				continue
			}
			n, ok := snap.Note(r.NoteID)
			if !ok || n.IsDeleted {
				continue
			}
			if hoisted != "" && r.NoteID != hoisted && !snap.IsDescendantOf(r.NoteID, hoisted) {
				continue
			}
			path := storedPath(snap, r)
			out = append(out, Suggestion{
				NoteID:    r.NoteID,
				NotePath:  strings.Join(path, "/"),
				Title:     n.DisplayTitle(),
				PathTitle: snap.PathTitle(path),
				Icon:      snap.NoteIcon(r.NoteID),
			})
		}
		return nil
	})
	return out, err
}

// storedPath reuses the path recorded with the visit while every step of
// it still exists; otherwise it falls back to the best current path.
func storedPath(snap *graph.Snapshot, r store.RecentNote) []string {
	path := strings.Split(r.NotePath, "/")
	if len(path) == 0 || path[len(path)-1] != r.NoteID || path[0] != graph.RootID {
		return snap.NotePath(r.NoteID)
	}
	for i := 1; i < len(path); i++ {
		if _, ok := snap.BranchBetween(path[i-1], path[i]); !ok {
			return snap.NotePath(r.NoteID)
		}
	}
	return path
}
