// Command cerboctl runs the operator tasks of the review board outside the
// HTTP server: the deadline sweep, schedule generation, minutes export and
// token issuance for local setups.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"cerbo-api/bootstrap"
	"cerbo-api/middleware"
	"cerbo-api/services"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cerboctl",
		Short:         "Operator tool for the research ethics review board",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(sweepCmd(), scheduleCmd(), minutesCmd(), tokenCmd())
	return cmd
}

func withApp(fn func(ctx context.Context, app *bootstrap.App) error) error {
	app, err := bootstrap.New()
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(context.Background(), app)
}

func sweepCmd() *cobra.Command {
	var (
		lockName string
		dryRun   bool
		trigger  string
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark overdue reports and reject their projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *bootstrap.App) error {
				if !cmd.Flags().Changed("lock-name") {
					lockName = app.Settings.DeadlineSweepLock
				}
				summary, err := app.Services.Sweep.Run(ctx, &services.DeadlineSweepInput{
					TriggerSource: trigger,
					LockName:      lockName,
					DryRun:        dryRun,
				})
				if err != nil {
					if errors.Is(err, services.ErrDeadlineSweepAlreadyRunning) {
						return &exitError{code: 3, msg: "deadline sweep already running (lock held)"}
					}
					return fmt.Errorf("deadline sweep failed: %w", err)
				}

				fmt.Printf("Reports checked: %d\n", summary.Checked)
				fmt.Printf("Overdue: %d, projects rejected: %d\n", summary.Overdue, summary.ProjectsRejected)
				fmt.Printf("Skipped: %d, failed: %d\n", summary.Skipped, summary.Failed)
				if dryRun {
					fmt.Println("Dry run: nothing was written")
				}
				if summary.Failed > 0 {
					return &exitError{code: 2, msg: fmt.Sprintf("%d report(s) could not be processed", summary.Failed)}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&lockName, "lock-name", "", "lock name (default from DEADLINE_SWEEP_LOCK, empty string disables)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list overdue reports without writing")
	cmd.Flags().StringVar(&trigger, "trigger", "cli", "trigger source label written to the log")
	return cmd
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage the yearly meeting calendar",
	}

	var (
		year    int
		confirm bool
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Replace a year's meetings with the computed calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *bootstrap.App) error {
				meetings, err := app.Services.Meetings.GenerateYearSchedule(ctx, services.SystemActor(), year, confirm)
				if err != nil {
					return err
				}
				for _, m := range meetings {
					fmt.Printf("%4d  %s  %s\n", m.MeetingID, m.ScheduledAt.In(app.Settings.BoardLocation).Format("2006-01-02 15:04"), m.Label)
				}
				fmt.Printf("%d meeting(s) generated for %d\n", len(meetings), year)
				return nil
			})
		},
	}
	generate.Flags().IntVar(&year, "year", time.Now().Year(), "calendar year")
	generate.Flags().BoolVar(&confirm, "confirm", false, "confirm deletion of the year's existing meetings")
	cmd.AddCommand(generate)
	return cmd
}

func minutesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "minutes",
		Short: "Export meeting minutes",
	}

	var (
		meetingID uint
		out       string
	)
	render := &cobra.Command{
		Use:   "render",
		Short: "Render the minutes of a meeting to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if meetingID == 0 {
				return errors.New("--meeting is required")
			}
			return withApp(func(ctx context.Context, app *bootstrap.App) error {
				data, err := app.Services.Meetings.RenderMinutes(ctx, services.SystemActor(), meetingID)
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = fmt.Sprintf("minutes-%d.pdf", meetingID)
					if app.Settings.RenderServiceURL == "" {
						path = strings.TrimSuffix(path, ".pdf") + ".html"
					}
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("write minutes: %w", err)
				}
				fmt.Printf("Minutes written to %s (%d bytes)\n", path, len(data))
				return nil
			})
		},
	}
	render.Flags().UintVar(&meetingID, "meeting", 0, "meeting id")
	render.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.AddCommand(render)
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		userID uint
		email  string
		roles  []string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token for a local user",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := middleware.IssueToken(os.Getenv("JWT_SECRET"), userID, email, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim, repeatable (default: role stored on the user)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
