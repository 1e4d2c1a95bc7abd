package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/roster"
	"github.com/pgvector/pgvector-go"
)

// RosterRepository stores students in the students table, encodings as pgvector vectors.
type RosterRepository struct {
	pool *Pool
}

// NewRosterRepository creates a new PostgreSQL roster repository
func NewRosterRepository(pool *Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

const studentColumns = "idx, student_id, name, image, encoding::text, created_at, updated_at"

// encodingValue converts an encoding to a query argument. Empty encodings are stored as NULL.
func encodingValue(enc []float32) any {
	if len(enc) == 0 {
		return nil
	}
	return pgvector.NewVector(enc)
}

func scanStudent(scanner interface{ Scan(...any) error }) (roster.Record, error) {
	var rec roster.Record
	var encoding sql.NullString
	if err := scanner.Scan(&rec.Index, &rec.ID, &rec.Name, &rec.Image, &encoding, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, fmt.Errorf("scan student: %w", err)
	}
	if encoding.Valid {
		var vec pgvector.Vector
		if err := vec.Scan(encoding.String); err != nil {
			return rec, fmt.Errorf("parse encoding: %w", err)
		}
		rec.Encoding = vec.Slice()
	}
	return rec, nil
}

// All returns every student ordered by index
func (r *RosterRepository) All(ctx context.Context) ([]roster.Record, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+studentColumns+" FROM students ORDER BY idx")
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var records []roster.Record
	for rows.Next() {
		rec, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return records, nil
}

func (r *RosterRepository) getOne(ctx context.Context, where string, arg any) (*roster.Record, error) {
	rec, err := scanStudent(r.pool.QueryRow(ctx, "SELECT "+studentColumns+" FROM students WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get retrieves a student by index
func (r *RosterRepository) Get(ctx context.Context, index int) (*roster.Record, error) {
	return r.getOne(ctx, "idx = $1", index)
}

// FindByID retrieves a student by student ID
func (r *RosterRepository) FindByID(ctx context.Context, id string) (*roster.Record, error) {
	return r.getOne(ctx, "student_id = $1", id)
}

// Count returns the number of students
func (r *RosterRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

const upsertStudent = `
	INSERT INTO students (idx, student_id, name, image, encoding, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (idx) DO UPDATE SET
		student_id = EXCLUDED.student_id,
		name = EXCLUDED.name,
		image = EXCLUDED.image,
		encoding = EXCLUDED.encoding,
		updated_at = EXCLUDED.updated_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putStudent(ctx context.Context, db execer, rec roster.Record) error {
	_, err := db.ExecContext(ctx, upsertStudent,
		rec.Index, rec.ID, rec.Name, rec.Image, encodingValue(rec.Encoding), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save student %s: %w", rec.ID, err)
	}
	return nil
}

// Put inserts or replaces the student at rec.Index
func (r *RosterRepository) Put(ctx context.Context, rec roster.Record) error {
	return putStudent(ctx, r.pool.db, rec)
}

// Delete removes the student at index
func (r *RosterRepository) Delete(ctx context.Context, index int) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM students WHERE idx = $1", index); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// Replace swaps the whole roster in one transaction
func (r *RosterRepository) Replace(ctx context.Context, records []roster.Record) error {
	return r.pool.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM students"); err != nil {
			return fmt.Errorf("clear students: %w", err)
		}
		for _, rec := range records {
			if err := putStudent(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}
