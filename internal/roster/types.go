// Package roster stores enrolled students and matches face encodings against them.
package roster

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no student has the requested ID.
	ErrNotFound = errors.New("student not found")
	// ErrDuplicateID is returned when enrolling or renaming onto an ID that is already taken.
	ErrDuplicateID = errors.New("student ID already exists")
	// ErrInvalid is returned for submissions missing a name, ID or image.
	ErrInvalid = errors.New("invalid student")
)

// Record is one enrolled student. Index is the stable roster key, ID is the
// operator-facing student identifier.
type Record struct {
	Index     int       `cbor:"index" json:"index"`
	ID        string    `cbor:"id" json:"id"`
	Name      string    `cbor:"name" json:"name"`
	Image     []byte    `cbor:"image" json:"-"` // JPEG
	Encoding  []float32 `cbor:"encoding" json:"-"`
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
	UpdatedAt time.Time `cbor:"updated_at" json:"updated_at"`
}

// HasImage reports whether a portrait is stored for the record.
func (r *Record) HasImage() bool {
	return len(r.Image) > 0
}
