package models

import (
	"strings"

	"nestdesk/pkg/platform/validation"
)

// AddNoteRequest is the body of POST /tickets/{ticket}/notes.
// Type 0 is an internal note, 1 a diagnostic note; missing means 1.
type AddNoteRequest struct {
	Note   string `json:"note"`
	Type   *int   `json:"type,omitempty"`
	IsFlag bool   `json:"is_flag"`
}

func (r *AddNoteRequest) Normalize() {
	r.Note = strings.TrimSpace(r.Note)
}

func (r *AddNoteRequest) Validate() error {
	if err := validation.CheckRequired("note", r.Note); err != nil {
		return err
	}
	return validation.CheckRuneLength("note", r.Note, validation.MaxNoteRunes)
}

// NoteType returns the requested type, defaulting to diagnostic.
func (r *AddNoteRequest) NoteType() int {
	if r.Type == nil {
		return 1
	}
	return *r.Type
}

// ExtractRequest is the body of POST /tickets/extract.
type ExtractRequest struct {
	Text string `json:"text"`
}

func (r *ExtractRequest) Validate() error {
	return validation.CheckStringLength("text", r.Text, validation.MaxExtractBytes)
}
