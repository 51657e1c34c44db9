// Package search compiles the note query language and runs it against a
// graph snapshot, ranking the matches.
package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/starford/arbor/internal/graph"
)

// ContentIndex finds notes by body text. It backs free-text matching
// outside fast mode.
type ContentIndex interface {
	SearchContent(ctx context.Context, token string, limit int) ([]string, error)
}

// Options tune a single search.
type Options struct {
	// FastSearch skips content and fuzzy title matching.
	FastSearch bool
	// AncestorNoteID restricts results to that note and its descendants.
	AncestorNoteID string
	// IncludeHidden keeps notes under the hidden subtree in the results.
	IncludeHidden bool
	// Limit caps the number of results; zero means the candidate cap.
	Limit int
}

// Result is one ranked match.
type Result struct {
	NoteID    string   `json:"noteId"`
	NotePath  []string `json:"notePath"`
	Title     string   `json:"title"`
	PathTitle string   `json:"pathTitle"`
	Icon      string   `json:"icon"`
	Score     float64  `json:"score"`
}

// Service runs queries against a graph cache.
type Service struct {
	cache         *graph.Cache
	content       ContentIndex
	logger        *slog.Logger
	maxCandidates int
	slowThreshold time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithContentIndex enables content matching outside fast mode.
func WithContentIndex(ci ContentIndex) Option {
	return func(s *Service) { s.content = ci }
}

// WithMaxCandidates sets how many matches are scored per query.
func WithMaxCandidates(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCandidates = n
		}
	}
}

// WithSlowQueryThreshold sets the latency above which queries are logged.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.slowThreshold = d
		}
	}
}

// NewService returns a search service over cache.
func NewService(cache *graph.Cache, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cache:         cache,
		logger:        logger,
		maxCandidates: 200,
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache is the graph the service reads.
func (s *Service) Cache() *graph.Cache { return s.cache }

// SlowQueryThreshold is the latency above which queries are logged.
func (s *Service) SlowQueryThreshold() time.Duration { return s.slowThreshold }

// Search compiles and runs query. A *apperr.ValidationError is returned
// for rejected queries; nothing is executed in that case.
func (s *Service) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	start := time.Now()
	q, err := Compile(query)
	if err != nil {
		return nil, err
	}
	if q.Empty() {
		return nil, nil
	}

	content := s.contentHits(ctx, q, opts)

	var results []Result
	err = s.cache.View(func(snap *graph.Snapshot) error {
		var err error
		results, err = s.run(ctx, snap, q, opts, content)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	if elapsed := time.Since(start); elapsed > s.slowThreshold {
		s.logger.Warn("search: slow query",
			slog.String("query", query),
			slog.Duration("elapsed", elapsed),
			slog.Int("results", len(results)))
	}
	return results, nil
}

// contentHits asks the content index about every free-text token before
// the snapshot is taken, so no I/O happens under the cache lock. Index
// failures degrade to title-only matching.
func (s *Service) contentHits(ctx context.Context, q *Query, opts Options) map[string]NoteSet {
	if opts.FastSearch || s.content == nil || len(q.Tokens) == 0 {
		return nil
	}
	hits := make(map[string]NoteSet, len(q.Tokens))
	for _, tok := range q.Tokens {
		if _, done := hits[tok]; done {
			continue
		}
		ids, err := s.content.SearchContent(ctx, tok, s.maxCandidates*5)
		if err != nil {
			s.logger.Warn("search: content index failed", slog.String("token", tok), slog.String("error", err.Error()))
			continue
		}
		hits[tok] = NewNoteSet(ids...)
	}
	return hits
}

func (s *Service) run(ctx context.Context, snap *graph.Snapshot, q *Query, opts Options, content map[string]NoteSet) ([]Result, error) {
	ec := &execContext{ctx: ctx, snap: snap, fast: opts.FastSearch, content: content}

	matched, err := q.expr.Execute(ec, s.initialSet(snap, opts))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := s.capCandidates(snap, q, matched)
	results := make([]Result, 0, len(candidates))
	for _, id := range candidates {
		path := snap.NotePath(id)
		n, _ := snap.Note(id)
		results = append(results, Result{
			NoteID:    id,
			NotePath:  path,
			Title:     n.DisplayTitle(),
			PathTitle: snap.PathTitle(path),
			Icon:      snap.NoteIcon(id),
			Score:     Score(snap, id, q.Text, q.Tokens),
		})
	}
	SortResults(results)

	limit := opts.Limit
	if limit <= 0 || limit > s.maxCandidates {
		limit = s.maxCandidates
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// initialSet is every live note in scope: not deleted, under the hoisted
// ancestor when one is set, and outside the hidden subtree unless asked.
func (s *Service) initialSet(snap *graph.Snapshot, opts Options) NoteSet {
	var ids []string
	if opts.AncestorNoteID != "" && opts.AncestorNoteID != graph.RootID {
		if !snap.HasNote(opts.AncestorNoteID) {
			return NoteSet{}
		}
		ids = append([]string{opts.AncestorNoteID}, snap.Descendants(opts.AncestorNoteID)...)
	} else {
		ids = snap.NoteIDs()
	}

	hiddenAllowed := opts.IncludeHidden || snap.IsInHiddenSubtree(opts.AncestorNoteID)
	out := make(NoteSet, len(ids))
	for _, id := range ids {
		n, ok := snap.Note(id)
		if !ok || n.IsDeleted {
			continue
		}
		if !hiddenAllowed && snap.IsInHiddenSubtree(id) {
			continue
		}
		out[id] = struct{}{}
	}
	return out
}

// capCandidates orders matches so that notes whose title contains the whole
// query come first, then by id, and keeps at most maxCandidates of them.
func (s *Service) capCandidates(snap *graph.Snapshot, q *Query, matched NoteSet) []string {
	ids := matched.Sorted()
	if len(ids) <= s.maxCandidates {
		return ids
	}
	full := strings.Join(q.Tokens, " ")
	strong := func(id string) int {
		n, _ := snap.Note(id)
		if full != "" && strings.Contains(Normalize(n.DisplayTitle()), full) {
			return 0
		}
		return 1
	}
	slices.SortStableFunc(ids, func(a, b string) int { return cmp.Compare(strong(a), strong(b)) })
	return ids[:s.maxCandidates]
}

// SortResults orders by descending score, ties broken by note id.
func SortResults(rs []Result) {
	slices.SortFunc(rs, func(a, b Result) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.NoteID, b.NoteID))
	})
}
