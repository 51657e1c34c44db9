// Package changes applies entity change events to the durable store and the
// in-memory graph, one at a time, and announces each applied change.
package changes

import (
	"encoding/json"
	"fmt"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
)

// Entity types carried by an Event.
const (
	EntityNote      = "note"
	EntityBranch    = "branch"
	EntityAttribute = "attribute"
	EntityContent   = "content"
)

// Operations carried by an Event. Create and update are applied as upserts.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Event is one change as received from a writer. Row holds the JSON of the
// matching models row; delete events only need its id field.
type Event struct {
	EntityType string          `json:"entityType"`
	Op         string          `json:"op"`
	Row        json.RawMessage `json:"row"`
}

// ContentRow sets the text content of a note.
type ContentRow struct {
	NoteID  string `json:"noteId"`
	Content string `json:"content"`
}

// decoded is an Event with its row parsed and validated.
type decoded struct {
	entityType string
	op         string
	id         string
	upsert     bool

	note    models.NoteRow
	branch  models.BranchRow
	attr    models.AttributeRow
	content ContentRow
}

func decode(ev Event) (decoded, error) {
	d := decoded{entityType: ev.EntityType, op: ev.Op}
	switch ev.Op {
	case OpCreate, OpUpdate, OpUpsert:
		d.upsert = true
	case OpDelete:
	default:
		return d, apperr.Validation(ev.Op, "unknown op")
	}
	if len(ev.Row) == 0 {
		return d, apperr.Validation(ev.EntityType, "row is required")
	}

	var err error
	switch ev.EntityType {
	case EntityNote:
		if err = json.Unmarshal(ev.Row, &d.note); err == nil {
			d.id = d.note.NoteID
			if d.upsert {
				err = d.note.Validate()
			}
		}
	case EntityBranch:
		if err = json.Unmarshal(ev.Row, &d.branch); err == nil {
			d.id = d.branch.BranchID
			if d.upsert {
				err = d.branch.Validate()
			}
		}
	case EntityAttribute:
		if err = json.Unmarshal(ev.Row, &d.attr); err == nil {
			d.id = d.attr.AttributeID
			if d.upsert {
				err = d.attr.Validate()
			}
		}
	case EntityContent:
		if !d.upsert {
			return d, apperr.Validation(ev.Op, "content cannot be deleted on its own")
		}
		err = json.Unmarshal(ev.Row, &d.content)
		d.id = d.content.NoteID
	default:
		return d, apperr.Validation(ev.EntityType, "unknown entity type")
	}
	if err != nil {
		return d, fmt.Errorf("changes: decode %s: %w", ev.EntityType, err)
	}
	if d.id == "" {
		return d, fmt.Errorf("changes: decode %s: %w: missing id", ev.EntityType, apperr.ErrMalformedRow)
	}
	return d, nil
}
