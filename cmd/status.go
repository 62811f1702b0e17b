package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hub-settle/pkg/solver"
	"hub-settle/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <hub-tx-hash>",
	Short: "Check the solver status of an intent",
	Long: `Check whether a solver has filled an intent, by the hub transaction that
created it.

Examples:
  hub-settle status 0x1234...abcd
  hub-settle status 0x1234...abcd --watch
  hub-settle status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	hubTx := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := loadApp(cmd, true)
	if err != nil {
		fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if watchStatus {
		watchIntentStatus(ctx, a, hubTx, jsonOutput)
	} else {
		checkIntentStatus(ctx, a, hubTx, jsonOutput)
	}
}

func checkIntentStatus(ctx context.Context, a *app, hubTx string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking intent status..."
		s.Start()
	}

	status, err := a.intents.GetStatus(ctx, hubTx)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		fail(err)
	}

	if jsonOutput {
		printJSON(status)
	} else {
		displayStatus(status, hubTx)
	}
}

func watchIntentStatus(ctx context.Context, a *app, hubTx string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		return
	}

	fmt.Printf("\nWatching intent status (Hub Tx: %s)\n", color.CyanString(hubTx))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	if checkAndDisplayStatus(ctx, a, hubTx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if checkAndDisplayStatus(ctx, a, hubTx) {
				return
			}
		}
	}
}

// checkAndDisplayStatus returns true once the status is final
func checkAndDisplayStatus(ctx context.Context, a *app, hubTx string) bool {
	status, err := a.intents.GetStatus(ctx, hubTx)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayStatus(status, hubTx)
	return status.Status == types.SolverSolved || status.Status == types.SolverFailed
}

func displayStatus(status *solver.StatusResponse, hubTx string) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       INTENT STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Hub Tx:       %s\n", color.CyanString(hubTx))
	fmt.Printf("  Status:       %s\n", getColoredStatus(status.Status))
	if status.FillTxHash != "" {
		fmt.Printf("  Fill Tx:      %s\n", color.HiBlackString(status.FillTxHash))
	}
	fmt.Printf("  Checked At:   %s\n", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status types.SolverStatus) string {
	switch status {
	case types.SolverSolved:
		return color.GreenString("SOLVED")
	case types.SolverNotStartedYet:
		return color.YellowString("NOT_STARTED_YET")
	case types.SolverStartedNotFinished:
		return color.YellowString("STARTED_NOT_FINISHED")
	case types.SolverFailed:
		return color.RedString("FAILED")
	case types.SolverNotFound:
		return color.MagentaString("NOT_FOUND")
	default:
		return fmt.Sprintf("UNKNOWN (%d)", status)
	}
}
