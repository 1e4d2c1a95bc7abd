package roster

import "context"

// Reader provides read-only access to the roster
type Reader interface {
	// All returns every record ordered by index
	All(ctx context.Context) ([]Record, error)
	// Get retrieves a record by index, returns nil if not found
	Get(ctx context.Context, index int) (*Record, error)
	// FindByID retrieves a record by student ID, returns nil if not found
	FindByID(ctx context.Context, id string) (*Record, error)
	// Count returns the number of enrolled students
	Count(ctx context.Context) (int, error)
}

// Store provides read and write access to the roster
type Store interface {
	Reader

	// Put inserts or replaces the record at rec.Index
	Put(ctx context.Context, rec Record) error
	// Delete removes the record at index. Deleting a missing index is not an error.
	Delete(ctx context.Context, index int) error
	// Replace swaps the whole roster for records (used by dataset rebuild)
	Replace(ctx context.Context, records []Record) error
}
