package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/roster"
	"github.com/kozaktomas/face-attendance/internal/web"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Attendance web server.
The web server provides a browser-based interface for enrolling students,
recognizing faces in uploaded pictures and browsing attendance reports.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (defaults to WEB_SESSION_SECRET)")
	serveCmd.Flags().Bool("watch-dataset", false, "Enroll images dropped into the dataset directory")
}

// resolveServeHostPort resolves port, host and session secret from flags, falling back to the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}
}

// setupLogRotation sends the log output to stderr and to a file in dir rotated daily.
func setupLogRotation(dir string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	rl, err := rotatelogs.New(
		filepath.Join(dir, "face-attendance.%Y%m%d.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, "face-attendance.log")),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(30*24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rotating log: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rl))
	return rl, nil
}

// saveRosterIndex writes the HNSW index after the roster changed or on shutdown.
func saveRosterIndex(matcher *roster.Matcher) {
	if err := matcher.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save roster HNSW index: %v\n", err)
	} else if matcher.Indexed() {
		fmt.Fprintln(os.Stderr, "Roster HNSW index saved to disk")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	cfg := b.cfg
	resolveServeHostPort(cmd, cfg)

	if cfg.Web.LogDir != "" {
		closer, err := setupLogRotation(cfg.Web.LogDir)
		if err != nil {
			return err
		}
		defer closer.Close()
		fmt.Printf("Writing logs to %s\n", cfg.Web.LogDir)
	}

	if mustGetBool(cmd, "watch-dataset") {
		watcher, err := newDatasetWatcher(b.manager, cfg.Paths.DatasetDir)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
		fmt.Printf("Watching %s for new students\n", cfg.Paths.DatasetDir)
	}

	if b.sessionRepo != nil {
		fmt.Printf("Session persistence enabled (PostgreSQL)\n")
	}

	server := web.NewServer(cfg, web.Deps{
		Manager:     b.manager,
		Attendance:  b.attendance,
		Tracker:     b.tracker,
		Settings:    config.NewSettingsStore(cfg.Paths.SettingsPath, b.settings),
		SessionRepo: b.sessionRepo,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
		saveRosterIndex(b.matcher)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance Web UI on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
