// Package attendance keeps one append-only CSV file of attendance marks per calendar day.
package attendance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Status of an attendance mark.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

var (
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
	// ErrInvalidStatus is returned for statuses other than present, absent or late.
	ErrInvalidStatus = errors.New("invalid status, expected present, absent or late")
	// ErrRangeTooLong is returned for summaries spanning more than constants.MaxSummaryDays.
	ErrRangeTooLong = fmt.Errorf("date range longer than %d days", constants.MaxSummaryDays)
)

// ParseStatus validates s. An empty status means present.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusPresent:
		return StatusPresent, nil
	case StatusAbsent:
		return StatusAbsent, nil
	case StatusLate:
		return StatusLate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

var header = []string{"ID", "Name", "Time", "Status"}

// Entry is one row of a day file.
type Entry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Time   string `json:"time"`
	Status string `json:"status"`
}

// Log reads and appends the per-day files under a directory.
type Log struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// New creates a log rooted at dir. The directory is created on first mark.
func New(dir string) *Log {
	return &Log{dir: dir, now: time.Now}
}

// Dir returns the attendance directory.
func (l *Log) Dir() string {
	return l.dir
}

// Today returns the current date as YYYY-MM-DD.
func (l *Log) Today() string {
	return l.now().Format(constants.DateLayout)
}

// ValidateDate checks that date is a real YYYY-MM-DD calendar date.
func ValidateDate(date string) error {
	if _, err := time.Parse(constants.DateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

func (l *Log) path(date string) string {
	return filepath.Join(l.dir, date+".csv")
}

// Mark appends a row for the student to today's file.
func (l *Log) Mark(id, name string, status Status) (*Entry, error) {
	if status == "" {
		status = StatusPresent
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry := &Entry{ID: id, Name: name, Time: now.Format(constants.TimeLayout), Status: string(status)}

	if err := os.MkdirAll(l.dir, 0750); err != nil {
		return nil, fmt.Errorf("create attendance directory: %w", err)
	}

	path := l.path(now.Format(constants.DateLayout))
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) //nolint:gosec // path built from validated date
	if err != nil {
		return nil, fmt.Errorf("open attendance file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write([]string{entry.ID, entry.Name, entry.Time, entry.Status}); err != nil {
		return nil, fmt.Errorf("write attendance: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush attendance: %w", err)
	}
	return entry, nil
}

// readDay parses a day file. A missing file has no entries.
func (l *Log) readDay(date string) ([]Entry, error) {
	f, err := os.Open(l.path(date))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open attendance file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	head, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[strings.TrimSpace(name)] = i
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var entries []Entry
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read attendance %s: %w", date, err)
		}
		entries = append(entries, Entry{
			ID:     field(row, "ID"),
			Name:   field(row, "Name"),
			Time:   field(row, "Time"),
			Status: field(row, "Status"),
		})
	}
	return entries, nil
}

// Report returns the rows logged on date, optionally only those of one student.
// An empty date means today.
func (l *Log) Report(date, id string) ([]Entry, error) {
	if date == "" {
		date = l.Today()
	}
	if err := ValidateDate(date); err != nil {
		return nil, err
	}

	entries, err := l.readDay(date)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return entries, nil
	}
	filtered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID == id {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Marked reports whether the student has any row on date.
func (l *Log) Marked(date, id string) (bool, error) {
	entries, err := l.Report(date, id)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// Dates returns every date with a day file, oldest first.
func (l *Log) Dates() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read attendance directory: %w", err)
	}

	dates := []string{}
	for _, e := range entries {
		date, ok := strings.CutSuffix(e.Name(), ".csv")
		if e.IsDir() || !ok || ValidateDate(date) != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// Export copies the raw day file to w. A missing day yields just the header.
func (l *Log) Export(date string, w io.Writer) error {
	if err := ValidateDate(date); err != nil {
		return err
	}
	f, err := os.Open(l.path(date))
	if errors.Is(err, os.ErrNotExist) {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		cw.Flush()
		return cw.Error()
	}
	if err != nil {
		return fmt.Errorf("open attendance file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("export attendance: %w", err)
	}
	return nil
}

// DayStatus is the first status a student got on one day.
type DayStatus struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Summary aggregates one student's attendance over a date range.
type Summary struct {
	StudentID            string      `json:"student_id"`
	StartDate            string      `json:"start_date"`
	EndDate              string      `json:"end_date"`
	TotalDays            int         `json:"total_days"`
	Present              int         `json:"present"`
	Absent               int         `json:"absent"`
	Late                 int         `json:"late"`
	AttendancePercentage float64     `json:"attendance_percentage"`
	Dates                []DayStatus `json:"dates"`
}

// Summary counts, for every day in [start, end] on which the student has a row,
// the status of the first row. Statuses other than present and late count as absent.
// Empty bounds default to the last 30 days through today. Only days with an
// attendance file are read, and start after end gives an empty summary.
func (l *Log) Summary(id, start, end string) (*Summary, error) {
	now := l.now()
	if end == "" {
		end = now.Format(constants.DateLayout)
	}
	if start == "" {
		start = now.AddDate(0, 0, -constants.DefaultSummaryDays).Format(constants.DateLayout)
	}
	startDay, err := time.Parse(constants.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, start)
	}
	endDay, err := time.Parse(constants.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, end)
	}

	if startDay.AddDate(0, 0, constants.MaxSummaryDays).Before(endDay) {
		return nil, fmt.Errorf("%w: %s..%s", ErrRangeTooLong, start, end)
	}

	days, err := l.Dates()
	if err != nil {
		return nil, err
	}

	s := &Summary{StudentID: id, StartDate: start, EndDate: end, Dates: []DayStatus{}}
	for _, date := range days {
		// YYYY-MM-DD sorts like the dates it names.
		if date < start || date > end {
			continue
		}
		entries, err := l.Report(date, id)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}

		first := entries[0]
		s.TotalDays++
		switch Status(first.Status) {
		case StatusPresent:
			s.Present++
		case StatusLate:
			s.Late++
		default:
			s.Absent++
		}
		s.Dates = append(s.Dates, DayStatus{Date: date, Status: first.Status, Time: first.Time})
	}

	if s.TotalDays > 0 {
		pct := float64(s.Present+s.Late) / float64(s.TotalDays) * 100
		s.AttendancePercentage = math.Round(pct*100) / 100
	}
	return s, nil
}
