package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/roster"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage enrolled students",
}

var rosterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled students",
	Long: `List enrolled students ordered by roster index.

Examples:
  # All students
  face-attendance roster list

  # Search by name or ID, diacritics are ignored
  face-attendance roster list --search novak`,
	Args: cobra.NoArgs,
	RunE: runRosterList,
}

var rosterShowCmd = &cobra.Command{
	Use:   "show <student-id>",
	Short: "Show one student",
	Args:  cobra.ExactArgs(1),
	RunE:  runRosterShow,
}

var rosterAddCmd = &cobra.Command{
	Use:   "add <student-id> <name> <image>",
	Short: "Enroll a student from a portrait",
	Args:  cobra.ExactArgs(3),
	RunE:  runRosterAdd,
}

var rosterUpdateCmd = &cobra.Command{
	Use:   "update <student-id>",
	Short: "Change a student's name, ID or portrait",
	Args:  cobra.ExactArgs(1),
	RunE:  runRosterUpdate,
}

var rosterDeleteCmd = &cobra.Command{
	Use:   "delete <student-id>",
	Short: "Remove a student from the roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runRosterDelete,
}

var rosterRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the roster from the dataset directory",
	Long: `Replace the whole roster with one student per image in the dataset directory.

Images must be named <id>_<name parts>.jpg, name parts are joined by spaces.
Files without a detectable face, badly named files and repeated IDs are skipped.`,
	Args: cobra.NoArgs,
	RunE: runRosterRebuild,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterListCmd, rosterShowCmd, rosterAddCmd, rosterUpdateCmd, rosterDeleteCmd, rosterRebuildCmd)

	rosterListCmd.Flags().String("search", "", "Filter by name or ID")
	rosterListCmd.Flags().Bool("json", false, "Output as JSON")
	rosterShowCmd.Flags().Bool("json", false, "Output as JSON")

	rosterUpdateCmd.Flags().String("name", "", "New name")
	rosterUpdateCmd.Flags().String("new-id", "", "New student ID")
	rosterUpdateCmd.Flags().String("image", "", "New portrait image")

	rosterRebuildCmd.Flags().String("dir", "", "Dataset directory (defaults to the configured DATASET_DIR)")
	rosterRebuildCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

func runRosterList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openRosterStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	manager := roster.NewManager(b.store, nil, nil)
	records, err := manager.List(ctx, mustGetString(cmd, "search"))
	if err != nil {
		return fmt.Errorf("failed to list students: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No students found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tID\tNAME\tENCODED")
	fmt.Fprintln(w, "-----\t--\t----\t-------")
	for i := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", records[i].Index, records[i].ID, records[i].Name, len(records[i].Encoding) > 0)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d students\n", len(records))
	return nil
}

func runRosterShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openRosterStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	manager := roster.NewManager(b.store, nil, nil)
	rec, err := manager.InfoFromID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get student %s: %w", args[0], err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(rec)
	}

	fmt.Printf("Index:    %d\n", rec.Index)
	fmt.Printf("ID:       %s\n", rec.ID)
	fmt.Printf("Name:     %s\n", rec.Name)
	fmt.Printf("Image:    %d bytes\n", len(rec.Image))
	fmt.Printf("Encoding: %d dimensions\n", len(rec.Encoding))
	fmt.Printf("Created:  %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", rec.UpdatedAt.Format(time.RFC3339))
	return nil
}

// describeSubmitError turns submission errors into operator-facing messages.
func describeSubmitError(id string, err error) error {
	switch {
	case errors.Is(err, recognition.ErrNoFace):
		return errors.New("no face in the picture")
	case errors.Is(err, roster.ErrDuplicateID):
		return fmt.Errorf("student ID %s already exists", id)
	default:
		return err
	}
}

func runRosterAdd(cmd *cobra.Command, args []string) error {
	id, name, imagePath := args[0], args[1], args[2]

	data, err := os.ReadFile(imagePath) //nolint:gosec // path is given by the operator
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	ctx := context.Background()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	res, err := b.manager.Submit(ctx, roster.SubmitRequest{Name: name, ID: id, Image: data})
	if err != nil {
		return describeSubmitError(id, err)
	}
	saveRosterIndex(b.matcher)
	fmt.Printf("Enrolled %s (%s) at index %d\n", res.Record.Name, res.Record.ID, res.Record.Index)
	return nil
}

func runRosterUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	existing, err := b.manager.InfoFromID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get student %s: %w", args[0], err)
	}

	req := roster.SubmitRequest{Name: existing.Name, ID: existing.ID, OldIndex: &existing.Index}
	if name := mustGetString(cmd, "name"); name != "" {
		req.Name = name
	}
	if newID := mustGetString(cmd, "new-id"); newID != "" {
		req.ID = newID
	}
	if imagePath := mustGetString(cmd, "image"); imagePath != "" {
		req.Image, err = os.ReadFile(imagePath) //nolint:gosec // path is given by the operator
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
	}

	res, err := b.manager.Submit(ctx, req)
	if err != nil {
		return describeSubmitError(req.ID, err)
	}
	saveRosterIndex(b.matcher)
	fmt.Printf("Updated %s (%s)\n", res.Record.Name, res.Record.ID)
	return nil
}

func runRosterDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openRosterStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	matcher := roster.NewMatcher(b.store, b.cfg.Database.HNSWIndexPath)
	manager := roster.NewManager(b.store, nil, matcher)
	if err := manager.DeleteByID(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to delete student %s: %w", args[0], err)
	}
	saveRosterIndex(matcher)
	fmt.Printf("Deleted student %s\n", args[0])
	return nil
}

// RebuildRosterResult is the JSON output of roster rebuild.
type RebuildRosterResult struct {
	Success       bool     `json:"success"`
	Total         int      `json:"total"`
	Added         int      `json:"added"`
	Skipped       []string `json:"skipped"`
	DurationMs    int64    `json:"duration_ms"`
	DurationHuman string   `json:"duration_human,omitempty"`
}

func runRosterRebuild(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	dir := mustGetString(cmd, "dir")
	if dir == "" {
		dir = b.cfg.Paths.DatasetDir
	}
	startTime := time.Now()

	var bar *progressbar.ProgressBar
	progress := func(done, total int, file string) {
		if jsonOutput {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Encoding faces"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("images"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	result, err := b.manager.BuildDataset(ctx, dir, progress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("failed to rebuild roster: %w", err)
	}
	saveRosterIndex(b.matcher)

	duration := time.Since(startTime)
	if jsonOutput {
		return outputJSON(RebuildRosterResult{
			Success:       true,
			Total:         result.Total,
			Added:         result.Added,
			Skipped:       result.SkippedFiles(),
			DurationMs:    duration.Milliseconds(),
			DurationHuman: duration.Round(time.Millisecond).String(),
		})
	}

	fmt.Printf("Roster rebuilt from %s in %s\n", dir, duration.Round(time.Millisecond))
	fmt.Printf("  Images:   %d\n", result.Total)
	fmt.Printf("  Enrolled: %d\n", result.Added)
	if skipped := result.SkippedFiles(); len(skipped) > 0 {
		fmt.Printf("  Skipped:  %d\n", len(skipped))
		for _, s := range skipped {
			fmt.Printf("    %s\n", s)
		}
	}
	return nil
}
