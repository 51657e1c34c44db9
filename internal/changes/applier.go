package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/models"
	"github.com/starford/arbor/internal/sse"
)

// Store is the write side of the entity store.
type Store interface {
	UpsertNote(ctx context.Context, row models.NoteRow) error
	UpsertBranch(ctx context.Context, row models.BranchRow) error
	UpsertAttribute(ctx context.Context, row models.AttributeRow) error
	DeleteNote(ctx context.Context, noteID string) error
	DeleteBranch(ctx context.Context, branchID string) error
	DeleteAttribute(ctx context.Context, attributeID string) error
	SetNoteContent(ctx context.Context, noteID, content string) error
}

// Publisher receives every applied change.
type Publisher interface {
	PublishChange(change sse.EntityChange)
}

// Result reports the outcome of one event in a batch.
type Result struct {
	EntityType string `json:"entityType"`
	Op         string `json:"op"`
	ID         string `json:"id,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	Error      string `json:"error,omitempty"`
}

type batch struct {
	ctx    context.Context
	events []Event
	done   chan []Result
}

// Applier serializes every change through one goroutine so the store and
// the cache see the same order.
type Applier struct {
	store  Store
	cache  *graph.Cache
	pub    Publisher
	logger *slog.Logger

	queue   chan batch
	stopped chan struct{}
}

// NewApplier returns an Applier. Run must be started before Apply is called.
// pub may be nil.
func NewApplier(store Store, cache *graph.Cache, pub Publisher, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		store:   store,
		cache:   cache,
		pub:     pub,
		logger:  logger,
		queue:   make(chan batch),
		stopped: make(chan struct{}),
	}
}

// Run applies queued batches until ctx is cancelled.
func (a *Applier) Run(ctx context.Context) error {
	defer close(a.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-a.queue:
			b.done <- a.applyBatch(b.ctx, b.events)
		}
	}
}

// Apply queues events and waits for them to be applied in order. Each event
// gets its own Result; a failed event does not stop the ones after it.
func (a *Applier) Apply(ctx context.Context, events []Event) ([]Result, error) {
	b := batch{ctx: ctx, events: events, done: make(chan []Result, 1)}
	select {
	case a.queue <- b:
	case <-a.stopped:
		return nil, fmt.Errorf("changes: apply: %w", apperr.ErrShutdown)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// Once queued the batch always completes; the loop never drops it.
	return <-b.done, nil
}

func (a *Applier) applyBatch(ctx context.Context, events []Event) []Result {
	results := make([]Result, len(events))
	for i, ev := range events {
		res := Result{EntityType: ev.EntityType, Op: ev.Op}
		d, err := decode(ev)
		res.ID = d.id
		if err == nil {
			err = a.apply(ctx, d)
		}
		if err != nil {
			res.Error = err.Error()
			level := slog.LevelError
			if errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrMalformedRow) ||
				errors.Is(err, apperr.ErrCycle) {
				level = slog.LevelWarn
			}
			a.logger.Log(ctx, level, "change rejected",
				slog.String("entity_type", ev.EntityType),
				slog.String("op", ev.Op),
				slog.String("id", d.id),
				slog.String("error", err.Error()))
			results[i] = res
			continue
		}

		res.Generation = a.cache.Generation()
		results[i] = res
		if a.pub != nil {
			a.pub.PublishChange(sse.EntityChange{
				EntityType: d.entityType,
				Op:         d.op,
				EntityID:   d.id,
				Generation: res.Generation,
			})
		}
	}
	return results
}

// apply persists first so a store failure leaves the cache untouched.
func (a *Applier) apply(ctx context.Context, d decoded) error {
	var err error
	switch d.entityType {
	case EntityNote:
		if d.upsert {
			if err = a.store.UpsertNote(ctx, d.note); err == nil {
				err = a.cache.UpsertNote(d.note)
			}
		} else if err = a.store.DeleteNote(ctx, d.id); err == nil {
			err = a.cache.RemoveNote(d.id)
		}
	case EntityBranch:
		if d.upsert {
			if err = a.cache.CheckBranch(d.branch); err != nil {
				break
			}
			if err = a.store.UpsertBranch(ctx, d.branch); err == nil {
				err = a.cache.UpsertBranch(d.branch)
			}
		} else if err = a.store.DeleteBranch(ctx, d.id); err == nil {
			err = a.cache.RemoveBranch(d.id)
		}
	case EntityAttribute:
		if d.upsert {
			if err = a.store.UpsertAttribute(ctx, d.attr); err == nil {
				err = a.cache.UpsertAttribute(d.attr)
			}
		} else if err = a.store.DeleteAttribute(ctx, d.id); err == nil {
			err = a.cache.RemoveAttribute(d.id)
		}
	case EntityContent:
		if _, ok := a.cache.GetNote(d.id); !ok {
			return fmt.Errorf("changes: content for %q: %w", d.id, apperr.ErrNotFound)
		}
		err = a.store.SetNoteContent(ctx, d.id, d.content.Content)
	}
	if err != nil {
		return fmt.Errorf("changes: %s %s %q: %w", d.op, d.entityType, d.id, err)
	}
	return nil
}
