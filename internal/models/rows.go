// Package models defines the row shapes exchanged with the durable store and
// the change stream.
package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/arbor/internal/apperr"
)

// AttributeType distinguishes labels from relations.
type AttributeType string

const (
	AttributeLabel    AttributeType = "label"
	AttributeRelation AttributeType = "relation"
)

// NoteRow is one row of the notes table.
type NoteRow struct {
	NoteID       string    `json:"noteId"`
	Title        string    `json:"title"`
	Type         NoteType  `json:"type"`
	Mime         string    `json:"mime"`
	IsProtected  bool      `json:"isProtected"`
	IsDeleted    bool      `json:"isDeleted"`
	DateCreated  time.Time `json:"dateCreated"`
	DateModified time.Time `json:"dateModified"`
}

// Validate reports a wrapped apperr.ErrMalformedRow when required fields are missing.
func (r *NoteRow) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.NoteID, validation.Required),
		validation.Field(&r.Type, validation.Required, validation.By(func(any) error {
			if !r.Type.Valid() {
				return fmt.Errorf("unknown note type %q", r.Type)
			}
			return nil
		})),
	)
	return malformed("note", r.NoteID, err)
}

// BranchRow is one parent→child edge.
type BranchRow struct {
	BranchID       string `json:"branchId"`
	NoteID         string `json:"noteId"`
	ParentNoteID   string `json:"parentNoteId"`
	NotePosition   int    `json:"notePosition"`
	Prefix         string `json:"prefix,omitempty"`
	IsExpanded     bool   `json:"isExpanded"`
	FromSearchNote bool   `json:"fromSearchNote"`
}

// Validate reports a wrapped apperr.ErrMalformedRow when required fields are missing.
func (r *BranchRow) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.BranchID, validation.Required),
		validation.Field(&r.NoteID, validation.Required),
		validation.Field(&r.ParentNoteID, validation.Required),
	)
	return malformed("branch", r.BranchID, err)
}

// AttributeRow is a label or relation owned by a note.
type AttributeRow struct {
	AttributeID   string        `json:"attributeId"`
	NoteID        string        `json:"noteId"`
	Type          AttributeType `json:"type"`
	Name          string        `json:"name"`
	Value         string        `json:"value"`
	Position      int           `json:"position"`
	IsInheritable bool          `json:"isInheritable"`
}

// Validate reports a wrapped apperr.ErrMalformedRow when required fields are missing.
func (r *AttributeRow) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.AttributeID, validation.Required),
		validation.Field(&r.NoteID, validation.Required),
		validation.Field(&r.Type, validation.Required, validation.In(AttributeLabel, AttributeRelation)),
		validation.Field(&r.Name, validation.Required),
	)
	return malformed("attribute", r.AttributeID, err)
}

func malformed(entity, id string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s %q: %v", apperr.ErrMalformedRow, entity, id, err)
}
