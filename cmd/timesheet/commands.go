package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/digitaldrywood/timesheet/internal/config"
	"github.com/digitaldrywood/timesheet/internal/database"
	"github.com/digitaldrywood/timesheet/internal/timesheet"
	"github.com/digitaldrywood/timesheet/internal/tracker"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in to Google and load the current sheet",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		if err := a.tracker.SignIn(ctx); err != nil {
			return err
		}
		fmt.Println("Signed in.")
		return nil
	}),
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Revoke the stored Google token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.tracker.SignOut(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Signed out. Cached months stay on this machine.")
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the month currently selected in the sheet",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		fmt.Print(renderSnapshot(a.tracker.Snapshot(), time.Now()))
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached months and the last successful sync, without going online",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Read()
	if err != nil {
		return err
	}
	db, err := database.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	last, err := db.LastSync()
	if err != nil {
		return err
	}
	if last.IsZero() {
		fmt.Println("Last sync: never")
	} else {
		fmt.Printf("Last sync: %s (%s)\n", humanize.Time(last), last.Local().Format("2006-01-02 15:04"))
	}

	periods, err := db.Periods()
	if err != nil {
		return err
	}
	if len(periods) == 0 {
		fmt.Println("No cached months.")
		return nil
	}
	fmt.Println("Cached months:")
	for _, p := range periods {
		rec, ok := db.LoadSnapshot(p)
		if !ok {
			continue
		}
		fmt.Printf("  %-8s %2d days filled, %s giờ\n", p, rec.Filled(), rec.TotalHours)
	}
	return nil
}

var editCmd = &cobra.Command{
	Use:   "edit DAY HOURS",
	Short: "Set the hours of one day (1-31) and sync that cell",
	Long: `Set the hours of one day and write that single cell to the sheet.
If the sheet cannot be reached, the edit is kept in the local cache.
Pass an empty string as HOURS to clear the day.`,
	Args: cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		day, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid day %q", args[0])
		}
		if err := a.tracker.CommitDay(ctx, day-1, args[1]); err != nil {
			return err
		}
		fmt.Print(renderSnapshot(a.tracker.Snapshot(), time.Now()))
		return nil
	}),
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the locally cached month to the sheet",
	Long: `Apply the locally cached copy of the current month on top of the sheet
and write the whole month back, then show the recomputed totals. Use it to
push edits that were kept locally while the sheet was unreachable.`,
	Args: cobra.NoArgs,
	RunE: runSave,
}

func runSave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Startup snapshots what the sheet shows, so read the cache first.
	cached, err := cachedMonths(a.db)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		return err
	}

	n, err := applyCached(a.tracker, cached)
	if err != nil {
		return err
	}
	if err := a.tracker.Save(ctx); err != nil {
		return err
	}
	fmt.Printf("Saved (%d local days applied).\n", n)
	fmt.Print(renderSnapshot(a.tracker.Snapshot(), time.Now()))
	return nil
}

// cachedMonths loads every cached month.
func cachedMonths(db *database.DB) (map[timesheet.Period]timesheet.Record, error) {
	periods, err := db.Periods()
	if err != nil {
		return nil, fmt.Errorf("failed to list cached months: %w", err)
	}
	months := make(map[timesheet.Period]timesheet.Record, len(periods))
	for _, p := range periods {
		if rec, ok := db.LoadSnapshot(p); ok {
			months[p] = *rec
		}
	}
	return months, nil
}

// applyCached replays the cached day cells of the current month that differ
// from the current record and returns how many it changed.
func applyCached(tr *tracker.Tracker, cached map[timesheet.Period]timesheet.Record) (int, error) {
	cur := tr.Current()
	rec, ok := cached[cur.Period]
	if !ok {
		return 0, nil
	}
	n := 0
	for i, hours := range rec.DailyHours {
		if hours == cur.DailyHours[i] {
			continue
		}
		if err := tr.EditDay(i, hours); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Read the sheet again and refresh the local cache",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		if err := a.tracker.Reload(ctx); err != nil {
			return err
		}
		fmt.Print(renderSnapshot(a.tracker.Snapshot(), time.Now()))
		return nil
	}),
}

var pinPeriod bool

var periodCmd = &cobra.Command{
	Use:   "period MONTH [YEAR]",
	Short: "Switch the sheet to another month",
	Long: `Switch to another month. Without YEAR the current year is kept. The month
is shown from the local cache at once and then written to the sheet so its
formulas recompute. With --pin only the month and year cells are changed and
the sheet's day cells are kept.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		month, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid month %q", args[0])
		}
		year := a.tracker.Current().Year
		if len(args) == 2 {
			if year, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid year %q", args[1])
			}
		}

		switch {
		case pinPeriod:
			err = a.tracker.PinPeriod(ctx, timesheet.Period{Month: month, Year: year})
		case len(args) == 1:
			err = a.tracker.ChangeMonth(ctx, month)
		default:
			err = a.tracker.ChangePeriod(ctx, timesheet.Period{Month: month, Year: year})
		}
		a.tracker.Wait()
		if err != nil {
			return err
		}
		fmt.Print(renderSnapshot(a.tracker.Snapshot(), time.Now()))
		return nil
	}),
}

func init() {
	periodCmd.Flags().BoolVar(&pinPeriod, "pin", false, "Only change the month and year cells")
}

// withApp wires the app, runs startup and closes everything afterwards.
func withApp(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.start(ctx); err != nil {
			return err
		}
		return run(ctx, a, args)
	}
}
