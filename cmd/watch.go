package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/tracker"
	"github.com/kozaktomas/face-attendance/internal/tracker/camera"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Track faces from the webcam and mark attendance",
	Long: `Capture frames from the webcam, recognize enrolled students and mark
them present once per day. Stop with Ctrl+C.

The webcam needs a build with -tags gocv. Use --frames to replay a directory
of images instead, e.g. on a headless machine.

Examples:
  face-attendance watch
  face-attendance watch --camera 1 --tolerance 0.45
  face-attendance watch --frames captured/ --save-dir annotated/`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Int("camera", 0, "Webcam index (defaults to the settings value)")
	watchCmd.Flags().String("frames", "", "Replay images from this directory instead of the webcam")
	watchCmd.Flags().Bool("loop", false, "Restart --frames after the last image")
	watchCmd.Flags().Float64("tolerance", 0.5, "Maximum face distance for a match (defaults to the settings value)")
	watchCmd.Flags().Bool("mark", true, "Mark recognized students present (defaults to the settings value)")
	watchCmd.Flags().Duration("interval", 0, "Pause between frames (default 200ms)")
	watchCmd.Flags().String("save-dir", "", "Directory for annotated frames")
}

// openCamera opens the frame source selected by the flags.
func openCamera(cmd *cobra.Command, b *backend) (camera.Camera, error) {
	if dir := mustGetString(cmd, "frames"); dir != "" {
		return camera.OpenDir(dir, mustGetBool(cmd, "loop"))
	}
	cfg := camera.Config{
		Index:  b.settings.Camera.Index,
		Width:  b.settings.Camera.Width,
		Height: b.settings.Camera.Height,
	}
	if cmd.Flags().Changed("camera") {
		cfg.Index = mustGetInt(cmd, "camera")
	}
	return camera.Open(cfg)
}

func runWatch(cmd *cobra.Command, args []string) error {
	saveDir := mustGetString(cmd, "save-dir")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := b.trackerOptions(cmd)
	opts.Interval = mustGetDuration(cmd, "interval")

	cam, err := openCamera(cmd, b)
	if err != nil {
		return err
	}
	defer cam.Close()

	if saveDir != "" {
		if err := os.MkdirAll(saveDir, 0o755); err != nil {
			return fmt.Errorf("creating save directory: %w", err)
		}
	}

	fmt.Printf("Tracking %d students (tolerance %.2f, auto-mark %t)\n", b.matcher.Len(), opts.Tolerance, opts.AutoMark)
	fmt.Println("Press Ctrl+C to stop")

	frames := 0
	last := ""
	err = b.tracker.Watch(ctx, cam, opts, func(res *tracker.Result) error {
		frames++
		for _, f := range res.Faces {
			if f.Marked {
				fmt.Printf("%s  marked %s (%s) present\n", time.Now().Format(time.TimeOnly), f.Name, f.ID)
			}
		}
		if label := res.Name; label != last {
			fmt.Printf("%s  %s\n", time.Now().Format(time.TimeOnly), label)
			last = label
		}
		if saveDir == "" {
			return nil
		}
		path := filepath.Join(saveDir, fmt.Sprintf("frame_%06d.jpg", frames))
		if err := os.WriteFile(path, res.Annotated, 0o600); err != nil {
			return fmt.Errorf("failed to save frame: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nProcessed %d frames\n", frames)
	return nil
}
