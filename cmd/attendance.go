package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/roster"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Record and report attendance",
}

var attendanceMarkCmd = &cobra.Command{
	Use:   "mark <student-id>",
	Short: "Mark a student for today",
	Long: `Append an attendance row for the student to today's file.

The name is looked up in the roster unless --name is given.

Examples:
  face-attendance attendance mark 1001
  face-attendance attendance mark 1001 --status late`,
	Args: cobra.ExactArgs(1),
	RunE: runAttendanceMark,
}

var attendanceReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the rows logged on a day",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceReport,
}

var attendanceSummaryCmd = &cobra.Command{
	Use:   "summary <student-id>",
	Short: "Summarize a student's attendance over a date range",
	Long: `Count present, late and absent days for one student.

Only days with a row for the student count, using the first row of each day.
The range defaults to the last 30 days.`,
	Args: cobra.ExactArgs(1),
	RunE: runAttendanceSummary,
}

var attendanceDatesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List days with attendance records",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceDates,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceMarkCmd, attendanceReportCmd, attendanceSummaryCmd, attendanceDatesCmd)

	attendanceMarkCmd.Flags().String("name", "", "Student name (defaults to the roster name)")
	attendanceMarkCmd.Flags().String("status", "present", "Status: present, absent or late")

	attendanceReportCmd.Flags().String("date", "", "Day as YYYY-MM-DD (defaults to today)")
	attendanceReportCmd.Flags().String("id", "", "Only rows of this student")
	attendanceReportCmd.Flags().Bool("json", false, "Output as JSON")

	attendanceSummaryCmd.Flags().String("start", "", "First day as YYYY-MM-DD")
	attendanceSummaryCmd.Flags().String("end", "", "Last day as YYYY-MM-DD (defaults to today)")
	attendanceSummaryCmd.Flags().Bool("json", false, "Output as JSON")
}

// openAttendanceLog loads the settings and returns the configured attendance log.
func openAttendanceLog() (*attendance.Log, error) {
	cfg, _, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	return attendance.New(cfg.Paths.AttendanceDir), nil
}

func runAttendanceMark(cmd *cobra.Command, args []string) error {
	id := args[0]
	status, err := attendance.ParseStatus(mustGetString(cmd, "status"))
	if err != nil {
		return err
	}

	name := mustGetString(cmd, "name")
	ctx := context.Background()
	b, err := openRosterStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if name == "" {
		rec, err := roster.NewManager(b.store, nil, nil).InfoFromID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get student %s: %w", id, err)
		}
		name = rec.Name
	}

	entry, err := attendance.New(b.cfg.Paths.AttendanceDir).Mark(id, name, status)
	if err != nil {
		return fmt.Errorf("failed to mark attendance: %w", err)
	}
	fmt.Printf("Marked %s (%s) %s at %s\n", entry.Name, entry.ID, entry.Status, entry.Time)
	return nil
}

func runAttendanceReport(cmd *cobra.Command, args []string) error {
	log, err := openAttendanceLog()
	if err != nil {
		return err
	}

	date := mustGetString(cmd, "date")
	if date == "" {
		date = log.Today()
	}
	entries, err := log.Report(date, mustGetString(cmd, "id"))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Printf("No attendance records for %s.\n", date)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tSTATUS")
	fmt.Fprintln(w, "--\t----\t----\t------")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Time, e.Status)
	}
	w.Flush()

	fmt.Printf("\n%s: %d records\n", date, len(entries))
	return nil
}

func runAttendanceSummary(cmd *cobra.Command, args []string) error {
	log, err := openAttendanceLog()
	if err != nil {
		return err
	}

	s, err := log.Summary(args[0], mustGetString(cmd, "start"), mustGetString(cmd, "end"))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(s)
	}

	fmt.Printf("Student %s, %s to %s\n", s.StudentID, s.StartDate, s.EndDate)
	fmt.Printf("  Days:    %d\n", s.TotalDays)
	fmt.Printf("  Present: %d\n", s.Present)
	fmt.Printf("  Late:    %d\n", s.Late)
	fmt.Printf("  Absent:  %d\n", s.Absent)
	fmt.Printf("  Rate:    %.2f%%\n", s.AttendancePercentage)

	if len(s.Dates) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tSTATUS\tTIME")
		for _, d := range s.Dates {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Date, d.Status, d.Time)
		}
		w.Flush()
	}
	return nil
}

func runAttendanceDates(cmd *cobra.Command, args []string) error {
	log, err := openAttendanceLog()
	if err != nil {
		return err
	}

	dates, err := log.Dates()
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		fmt.Println("No attendance records yet.")
		return nil
	}
	for _, d := range dates {
		fmt.Println(d)
	}
	return nil
}
