package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hub-settle/pkg/intent"
	"hub-settle/pkg/journal"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <journal-id>",
	Short: "Cancel an unfilled intent",
	Long: `Cancel an intent created by 'hub-settle swap'. The intent is looked up in the
settlement journal; the cancellation is sent from the same source account
through its hub wallet and relayed to the hub. Filled intents cannot be
cancelled.

Examples:
  hub-settle cancel 6f1c2a3e-...
  hub-settle cancel 6f1c2a3e-... --dry-run`,
	Args: cobra.ExactArgs(1),
	Run:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)

	cancelCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	cancelCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Prepare the cancellation without sending it")
	cancelCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "How long to wait for hub execution (defaults to config)")
}

func runCancel(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := loadApp(cmd, true)
	if err != nil {
		fail(err)
	}

	record, err := a.journal.Get(args[0])
	if err != nil {
		fail(err)
	}
	if record.Kind != journal.KindIntent {
		fail(fmt.Errorf("record '%s' is a %s, not an intent", record.ID, record.Kind))
	}
	target, from, err := intent.IntentFromRecord(record)
	if err != nil {
		fail(err)
	}

	if !noConfirm && !jsonOutput && !dryRun {
		fmt.Printf("\n  Intent ID: %s\n", target.IntentID)
		fmt.Printf("  Creator:   %s on %s\n", from, record.ChainID)
		if !confirm("Cancel this intent?") {
			fmt.Println("\nNothing cancelled.")
			os.Exit(0)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Sending cancellation..."
		s.Start()
	}

	if dryRun {
		_, err := a.intents.CancelIntent(ctx, from, target, true)
		if !jsonOutput {
			s.Stop()
		}
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"intent_id": target.IntentID.String(), "status": "prepared"})
			return
		}
		printSuccess(color.GreenString("✓ Cancellation of intent %s simulated successfully", target.IntentID))
		return
	}

	timeout := timeoutFlag
	if timeout == 0 {
		timeout = a.cfg.Timeout
	}
	result, err := a.intents.CancelAndSubmitIntent(ctx, from, target, timeout)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		fail(err)
	}

	if _, err := a.journal.Update(record.ID, func(r *journal.Record) {
		r.Stage = journal.StageCancelled
	}); err != nil && !jsonOutput {
		color.Yellow("Warning: failed to update journal record: %v", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"intent_id":     target.IntentID.String(),
			"spoke_tx_hash": result.Handle.Hash,
			"hub_tx_hash":   result.Packet.DstTxHash,
			"journal_id":    result.JournalID,
			"status":        "cancelled",
		})
		return
	}

	color.Green("\n✓ Intent cancelled")
	fmt.Printf("  Spoke Tx: %s\n", color.CyanString(result.Handle.Hash))
	fmt.Printf("  Hub Tx:   %s\n\n", color.CyanString(result.Packet.DstTxHash))
}
