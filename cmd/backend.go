package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/roster"
	"github.com/kozaktomas/face-attendance/internal/roster/mariadb"
	"github.com/kozaktomas/face-attendance/internal/roster/postgres"
	"github.com/kozaktomas/face-attendance/internal/tracker"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"github.com/spf13/cobra"
)

// backend holds the services shared by the commands.
type backend struct {
	cfg         *config.Config
	settings    *config.Settings
	store       roster.Store
	recognizer  recognition.Recognizer
	matcher     *roster.Matcher
	manager     *roster.Manager
	attendance  *attendance.Log
	tracker     *tracker.Tracker
	sessionRepo middleware.SessionRepository

	closers []func() error
}

// loadConfig reads the environment and the settings file, whose paths fill
// what the environment leaves unset.
func loadConfig(create bool) (*config.Config, *config.Settings, error) {
	cfg := config.Load()
	if settingsPath != "" {
		cfg.Paths.SettingsPath = settingsPath
	}
	s, err := config.LoadSettings(cfg.Paths.SettingsPath, create)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplySettings(s)
	return cfg, s, nil
}

// openStore connects the roster backend selected by DATABASE_URL.
func (b *backend) openStore(ctx context.Context) error {
	switch b.cfg.Database.Driver() {
	case config.DriverFile:
		fmt.Printf("Using roster file %s\n", b.cfg.Paths.RosterPath)
		b.store = roster.NewFileStore(b.cfg.Paths.RosterPath)
	case config.DriverPostgres:
		fmt.Printf("Connecting to PostgreSQL database...\n")
		pool, err := postgres.Initialize(ctx, &b.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.store = postgres.NewRosterRepository(pool)
		b.sessionRepo = postgres.NewSessionRepository(pool)
	case config.DriverMySQL:
		fmt.Printf("Connecting to MariaDB database...\n")
		pool, err := mariadb.NewPool(&b.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if err := pool.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to create MariaDB schema: %w", err)
		}
		b.store = mariadb.NewRosterRepository(pool)
	default:
		return fmt.Errorf("unsupported DATABASE_URL scheme: %s", b.cfg.Database.URL)
	}
	return nil
}

// openRosterStore opens only the roster store, for commands that never detect faces.
func openRosterStore(ctx context.Context) (*backend, error) {
	cfg, settings, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	b := &backend{cfg: cfg, settings: settings}
	if err := b.openStore(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// openBackend wires the roster store, the recognizer, the matcher and the attendance log.
func openBackend(ctx context.Context) (*backend, error) {
	b, err := openRosterStore(ctx)
	if err != nil {
		return nil, err
	}

	b.recognizer, err = recognition.New(&b.cfg.Recognizer)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to initialize recognizer: %w", err)
	}
	if c, ok := b.recognizer.(recognition.Closer); ok {
		b.closers = append(b.closers, c.Close)
	}

	b.matcher = roster.NewMatcher(b.store, b.cfg.Database.HNSWIndexPath)
	if err := b.matcher.Refresh(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	if b.matcher.Indexed() {
		fmt.Printf("Roster HNSW index ready with %d students\n", b.matcher.Len())
	}

	b.manager = roster.NewManager(b.store, b.recognizer, b.matcher)
	b.attendance = attendance.New(b.cfg.Paths.AttendanceDir)
	b.tracker = tracker.New(b.recognizer, b.matcher, b.attendance)
	return b, nil
}

// trackerOptions builds recognition options from the settings, overridden by
// the --tolerance and --mark flags when given.
func (b *backend) trackerOptions(cmd *cobra.Command) tracker.Options {
	opts := tracker.Options{
		Tolerance:    b.settings.Recognition.DefaultTolerance,
		AutoMark:     b.settings.Recognition.AutoMark,
		ShowDistance: b.settings.Recognition.ShowDistance,
	}
	if cmd.Flags().Changed("tolerance") {
		opts.Tolerance = mustGetFloat64(cmd, "tolerance")
	}
	if cmd.Flags().Changed("mark") {
		opts.AutoMark = mustGetBool(cmd, "mark")
	}
	return opts
}

// Close releases database pools and native recognizer resources.
func (b *backend) Close() {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Printf("Warning: failed to close backend: %v\n", err)
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
