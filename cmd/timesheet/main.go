package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "timesheet",
	Short: "Edit the monthly ChamCong timesheet kept in Google Sheets",
	Long: `timesheet keeps a monthly timesheet in sync with the ChamCong sheet of a
Google spreadsheet. Edits are cached locally per month, so nothing is lost
while the sheet is unreachable or the sign-in has expired.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			return os.Setenv("TIMESHEET_CONFIG", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default .local/config.toml)")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(signoutCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(periodCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(insightCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
