package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/face-attendance/internal/tracker"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>...",
	Short: "Recognize enrolled students in pictures",
	Long: `Detect every face in the given pictures and match it against the roster.

Examples:
  # Recognize and mark attendance with the configured defaults
  face-attendance recognize class.jpg

  # Stricter matching, no attendance, annotated copies written to out/
  face-attendance recognize *.jpg --tolerance 0.4 --mark=false --out out/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("tolerance", 0.5, "Maximum face distance for a match (defaults to the settings value)")
	recognizeCmd.Flags().Bool("mark", true, "Mark recognized students present (defaults to the settings value)")
	recognizeCmd.Flags().String("out", "", "Directory for annotated copies of the pictures")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

// RecognizeFileResult is the outcome for one picture.
type RecognizeFileResult struct {
	File  string               `json:"file"`
	Faces []tracker.FaceResult `json:"faces"`
	Name  string               `json:"name"`
	ID    string               `json:"id"`
	Error string               `json:"error,omitempty"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	outDir := mustGetString(cmd, "out")

	ctx := context.Background()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := b.trackerOptions(cmd)
	if opts.Tolerance < 0 || opts.Tolerance > 1 {
		return fmt.Errorf("tolerance %.2f out of range [0,1]", opts.Tolerance)
	}

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	results := make([]RecognizeFileResult, 0, len(args))
	for _, path := range args {
		res := RecognizeFileResult{File: path}
		if err := recognizeFile(ctx, b.tracker, path, outDir, opts, &res); err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	if jsonOutput {
		return outputJSON(results)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tFACE\tNAME\tID\tDISTANCE\tMARKED")
	fmt.Fprintln(w, "----\t----\t----\t--\t--------\t------")
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s\t-\terror: %s\t\t\t\n", r.File, r.Error)
			continue
		}
		if len(r.Faces) == 0 {
			fmt.Fprintf(w, "%s\t-\tno faces\t\t\t\n", r.File)
			continue
		}
		for i, f := range r.Faces {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%.3f\t%t\n", r.File, i+1, f.Name, f.ID, f.Distance, f.Marked)
		}
	}
	w.Flush()
	return nil
}

func recognizeFile(ctx context.Context, t *tracker.Tracker, path, outDir string, opts tracker.Options, res *RecognizeFileResult) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is given by the operator
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	out, err := t.Process(ctx, data, opts)
	if err != nil {
		return err
	}
	res.Faces = out.Faces
	res.Name = out.Name
	res.ID = out.ID

	if outDir == "" {
		return nil
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "_annotated.jpg"
	if err := os.WriteFile(filepath.Join(outDir, name), out.Annotated, 0o600); err != nil {
		return fmt.Errorf("failed to write annotated image: %w", err)
	}
	return nil
}
