package mariadb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/kozaktomas/face-attendance/internal/roster"
)

// RosterRepository stores students in MariaDB. Encodings are little-endian float32 blobs.
type RosterRepository struct {
	pool *Pool
}

// NewRosterRepository creates a new MariaDB roster repository
func NewRosterRepository(pool *Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

// encodeFloat32s packs an encoding into a blob. Empty encodings are NULL.
func encodeFloat32s(enc []float32) []byte {
	if len(enc) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(enc))
	for i, f := range enc {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("encoding blob has %d bytes, not a multiple of 4", len(buf))
	}
	enc := make([]float32, len(buf)/4)
	for i := range enc {
		enc[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return enc, nil
}

const studentColumns = "idx, student_id, name, image, encoding, created_at, updated_at"

func scanStudent(scanner interface{ Scan(...any) error }) (roster.Record, error) {
	var rec roster.Record
	var blob []byte
	if err := scanner.Scan(&rec.Index, &rec.ID, &rec.Name, &rec.Image, &blob, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, fmt.Errorf("scan student: %w", err)
	}
	enc, err := decodeFloat32s(blob)
	if err != nil {
		return rec, err
	}
	rec.Encoding = enc
	return rec, nil
}

// All returns every student ordered by index
func (r *RosterRepository) All(ctx context.Context) ([]roster.Record, error) {
	rows, err := r.pool.db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY idx")
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
	rec, err := scanStudent(r.pool.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE "+where, arg))
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
	return r.getOne(ctx, "idx = ?", index)
}

// FindByID retrieves a student by student ID
func (r *RosterRepository) FindByID(ctx context.Context, id string) (*roster.Record, error) {
	return r.getOne(ctx, "student_id = ?", id)
}

// Count returns the number of students
func (r *RosterRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

const upsertStudent = `
	INSERT INTO students (idx, student_id, name, image, encoding, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		student_id = VALUES(student_id),
		name = VALUES(name),
		image = VALUES(image),
		encoding = VALUES(encoding),
		updated_at = VALUES(updated_at)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putStudent(ctx context.Context, db execer, rec roster.Record) error {
	_, err := db.ExecContext(ctx, upsertStudent,
		rec.Index, rec.ID, rec.Name, rec.Image, encodeFloat32s(rec.Encoding), rec.CreatedAt, rec.UpdatedAt)
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
	if _, err := r.pool.db.ExecContext(ctx, "DELETE FROM students WHERE idx = ?", index); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// Replace swaps the whole roster in one transaction
func (r *RosterRepository) Replace(ctx context.Context, records []roster.Record) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM students"); err != nil {
		return fmt.Errorf("clear students: %w", err)
	}
	for _, rec := range records {
		if err := putStudent(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit roster: %w", err)
	}
	return nil
}
