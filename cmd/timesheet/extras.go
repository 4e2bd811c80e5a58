package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitaldrywood/timesheet/internal/export"
	"github.com/digitaldrywood/timesheet/internal/insight"
	"github.com/digitaldrywood/timesheet/internal/logging"
	"github.com/digitaldrywood/timesheet/internal/server"
	"github.com/digitaldrywood/timesheet/internal/tracker"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current month to an xlsx document",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		dir := exportDir
		if dir == "" {
			dir = a.cfg.ExportDir
		}
		path, err := export.WriteFile(dir, a.tracker.Current(), time.Now())
		if err != nil {
			return err
		}
		fmt.Println("Exported", path)
		return nil
	}),
}

var insightCmd = &cobra.Command{
	Use:   "insight",
	Short: "Ask for a short comment on this month's hours and salary",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		analyzer := insight.NewAnalyzer(a.cfg.AnthropicAPIKey, a.cfg.InsightModel)
		fmt.Println(analyzer.Analyze(ctx, a.tracker.Current()))
		return nil
	}),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the editor API and live updates on the listen address",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "Directory to write the document to (default export_dir)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Config{
		Core:           a.tracker,
		Analyzer:       insight.NewAnalyzer(a.cfg.AnthropicAPIKey, a.cfg.InsightModel),
		MetricsEnabled: a.cfg.MetricsEnabled,
		Logger:         logging.New("server"),
	})
	defer srv.Close()

	// Startup may wait on the browser consent; the UI follows it over /ws.
	go func() {
		if err := a.start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Startup: %v", err)
			if a.tracker.State() == tracker.StateAwaitingAuth {
				log.Printf("Sign in with POST /api/reload")
			}
		}
	}()

	return srv.ListenAndServe(ctx, a.cfg.ListenAddr)
}
