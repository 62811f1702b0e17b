package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hub-settle/config"
	"hub-settle/pkg/journal"
	"hub-settle/pkg/relay"
	"hub-settle/pkg/solver"
)

var recoverStageFilter string

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Inspect and recover journaled settlements",
	Long: `Every bridge, swap and cancellation is recorded in the settlement journal.
Use these commands to find operations that did not finish and push them along.

A record in stage "timeout" was relayed but the hub execution was not seen in
time; 'recover sweep' polls the relay again. A failed record with code
SUBMIT_TX_FAILED moved funds on the spoke chain but the relay never
acknowledged it; 'recover resubmit' submits it again. An executed intent with
code POST_EXECUTION_FAILED was never reported to the solver; 'recover notify'
reports it again.`,
}

var recoverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal records",
	Long: `Display every journal record with its stage.

Examples:
  hub-settle recover list
  hub-settle recover list --stage timeout`,
	Run: runRecoverList,
}

var recoverViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "View a journal record",
	Args:  cobra.ExactArgs(1),
	Run:   runRecoverView,
}

var recoverCheckCmd = &cobra.Command{
	Use:   "check <id>",
	Short: "Poll the relay once for a single record",
	Args:  cobra.ExactArgs(1),
	Run:   runRecoverCheck,
}

var recoverSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Poll the relay once for every pending record",
	Run:   runRecoverSweep,
}

var recoverResubmitCmd = &cobra.Command{
	Use:   "resubmit <id>",
	Short: "Submit an unacknowledged spoke transaction to the relay again",
	Args:  cobra.ExactArgs(1),
	Run:   runRecoverResubmit,
}

var recoverNotifyCmd = &cobra.Command{
	Use:   "notify <id>",
	Short: "Report an executed intent to the solver again",
	Args:  cobra.ExactArgs(1),
	Run:   runRecoverNotify,
}

var recoverDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a finished journal record",
	Args:  cobra.ExactArgs(1),
	Run:   runRecoverDelete,
}

var recoverWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep polling pending records until stopped",
	Long: `Run the journal watcher in the foreground. Pending records are polled on the
configured watch interval until they execute, fail or age out.

Examples:
  hub-settle recover watch

  # Run in background (Linux/Mac)
  nohup hub-settle recover watch > ~/hub-settle-watch.log 2>&1 &`,
	Run: runRecoverWatch,
}

func init() {
	rootCmd.AddCommand(recoverCmd)

	recoverCmd.AddCommand(recoverListCmd)
	recoverCmd.AddCommand(recoverViewCmd)
	recoverCmd.AddCommand(recoverCheckCmd)
	recoverCmd.AddCommand(recoverSweepCmd)
	recoverCmd.AddCommand(recoverResubmitCmd)
	recoverCmd.AddCommand(recoverNotifyCmd)
	recoverCmd.AddCommand(recoverDeleteCmd)
	recoverCmd.AddCommand(recoverWatchCmd)

	recoverListCmd.Flags().StringVar(&recoverStageFilter, "stage", "", "Filter by stage (spoke_sent, submitted, timeout, failed, executed, ...)")
}

// loadJournal opens the journal and a relay watcher without the chain stack.
// The watcher notifies the solver when one is configured.
func loadJournal(cmd *cobra.Command) (*config.Config, *journal.Journal, *journal.Watcher, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	setupLogging(cmd, cfg)

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, nil, nil, err
	}
	watcher := journal.NewWatcher(j, relay.NewClient(cfg.RelayURL, relay.WithPollInterval(cfg.RelayPollInterval)))
	watcher.SetInterval(cfg.WatchInterval)
	if cfg.SolverURL != "" {
		watcher.SetSolver(solver.NewClient(cfg.SolverURL,
			solver.WithPollInterval(cfg.SolverPollInterval),
			solver.WithNotFoundGrace(cfg.NotFoundGrace),
		))
	}
	return cfg, j, watcher, nil
}

func runRecoverList(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	_, j, _, err := loadJournal(cmd)
	if err != nil {
		fail(err)
	}

	var records []*journal.Record
	for _, r := range j.List() {
		if recoverStageFilter != "" && !strings.EqualFold(string(r.Stage), recoverStageFilter) {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(a, b int) bool { return records[a].Created.After(records[b].Created) })

	if jsonOutput {
		printJSON(records)
		return
	}

	if len(records) == 0 {
		fmt.Println("\nNo journal records found.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                   SETTLEMENT JOURNAL")
	fmt.Println(strings.Repeat("=", 100))
	fmt.Printf("\n  %-36s  %-7s  %-10s  %-20s  %s\n", "ID", "KIND", "CHAIN", "STAGE", "UPDATED")
	fmt.Println("  " + strings.Repeat("-", 96))
	for _, r := range records {
		fmt.Printf("  %-36s  %-7s  %-10s  %-29s  %s\n",
			r.ID, r.Kind, r.ChainID, getStageColor(r.Stage), r.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	pending := len(j.Pending())
	unsubmitted := len(j.Unsubmitted())
	unnotified := len(j.Unnotified())
	fmt.Println("\n" + strings.Repeat("=", 100))
	fmt.Printf("\nTotal: %d records, %d pending, %d awaiting resubmission, %d awaiting solver notification\n",
		len(records), pending, unsubmitted, unnotified)
	fmt.Printf("Journal: %s\n\n", color.HiBlackString(j.Path()))
	if unsubmitted > 0 {
		color.Yellow("Records awaiting resubmission can be retried with 'hub-settle recover resubmit <id>'.\n")
	}
	if unnotified > 0 {
		color.Yellow("Executed intents can be reported to the solver with 'hub-settle recover notify <id>'.\n")
	}
}

func runRecoverView(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	_, j, _, err := loadJournal(cmd)
	if err != nil {
		fail(err)
	}
	r, err := j.Get(args[0])
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		printJSON(r)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                      JOURNAL RECORD")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n  ID:          %s\n", color.CyanString(r.ID))
	fmt.Printf("  Kind:        %s\n", r.Kind)
	fmt.Printf("  Chain:       %s (relay chain %d)\n", r.ChainID, r.RelayChainID)
	fmt.Printf("  Stage:       %s\n", getStageColor(r.Stage))
	fmt.Printf("  Created:     %s\n", r.Created.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated:     %s\n", r.LastUpdated.Format("2006-01-02 15:04:05"))
	if r.SpokeTxHash != "" {
		fmt.Printf("  Spoke Tx:    %s\n", color.HiBlackString(r.SpokeTxHash))
	}
	if r.HubTxHash != "" {
		fmt.Printf("  Hub Tx:      %s\n", color.HiBlackString(r.HubTxHash))
	}
	if r.ErrorCode != "" {
		fmt.Printf("  Error Code:  %s\n", color.RedString(string(r.ErrorCode)))
	}
	if r.Error != "" {
		fmt.Printf("  Error:       %s\n", r.Error)
	}

	if len(r.Detail) > 0 {
		keys := make([]string, 0, len(r.Detail))
		for k := range r.Detail {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("\n  Details:")
		for _, k := range keys {
			v := r.Detail[k]
			if len(v) > 80 {
				v = v[:77] + "..."
			}
			fmt.Printf("    %-22s %s\n", k+":", v)
		}
	}
	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func runRecoverCheck(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	_, j, watcher, err := loadJournal(cmd)
	if err != nil {
		fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	done, err := watcher.Check(ctx, args[0])
	if err != nil {
		fail(err)
	}
	r, err := j.Get(args[0])
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"id": r.ID, "stage": r.Stage, "final": done, "hub_tx_hash": r.HubTxHash})
		return
	}
	fmt.Printf("\n  Record: %s\n", r.ID)
	fmt.Printf("  Stage:  %s\n", getStageColor(r.Stage))
	if r.HubTxHash != "" {
		fmt.Printf("  Hub Tx: %s\n", color.CyanString(r.HubTxHash))
	}
	if !done {
		color.Yellow("\nThe relay has not finished this packet yet. Try again later.\n")
	}
	fmt.Println()
}

func runRecoverSweep(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	_, j, watcher, err := loadJournal(cmd)
	if err != nil {
		fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	pending := len(j.Pending())
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = fmt.Sprintf(" Polling relay for %d pending record(s)...", pending)
		s.Start()
	}
	resolved, err := watcher.Sweep(ctx)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		printJSON(map[string]int{"pending": pending, "resolved": resolved})
		return
	}
	printSuccess(fmt.Sprintf("%s %d of %d pending record(s) resolved",
		color.GreenString("✓"), resolved, pending))
}

func runRecoverResubmit(cmd *cobra.Command, args []string) {
	_, _, watcher, err := loadJournal(cmd)
	if err != nil {
		fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := watcher.Resubmit(ctx, args[0]); err != nil {
		fail(err)
	}
	printSuccess(color.GreenString("✓ Record '%s' resubmitted to the relay", args[0]))
	fmt.Println("Follow its progress with:")
	color.Cyan("  hub-settle recover sweep\n")
}

func runRecoverNotify(cmd *cobra.Command, args []string) {
	_, _, watcher, err := loadJournal(cmd)
	if err != nil {
		fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := watcher.Notify(ctx, args[0]); err != nil {
		fail(err)
	}
	printSuccess(color.GreenString("✓ Solver notified of record '%s'", args[0]))
}

func runRecoverDelete(cmd *cobra.Command, args []string) {
	_, j, _, err := loadJournal(cmd)
	if err != nil {
		fail(err)
	}
	if err := j.Delete(args[0]); err != nil {
		fail(err)
	}
	printSuccess(color.GreenString("✓ Record '%s' deleted", args[0]))
}

func runRecoverWatch(cmd *cobra.Command, args []string) {
	cfg, j, watcher, err := loadJournal(cmd)
	if err != nil {
		fail(err)
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                 HUB-SETTLE JOURNAL WATCHER")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n  Journal:  %s\n", color.HiBlackString(j.Path()))
	fmt.Printf("  Pending:  %d record(s)\n", len(j.Pending()))
	fmt.Printf("  Interval: %s\n", cfg.WatchInterval)
	color.Yellow("\n• Press Ctrl+C to stop gracefully\n")
	fmt.Println(strings.Repeat("=", 70) + "\n")

	ctx, cancel := signalContext()
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		fail(err)
	}

	<-ctx.Done()

	color.Yellow("\nReceived shutdown signal. Stopping watcher...")
	watcher.Stop()
	color.Green("✓ Watcher stopped\n")
}

func getStageColor(stage journal.Stage) string {
	switch stage {
	case journal.StageExecuted, journal.StageSolved:
		return color.GreenString(string(stage))
	case journal.StageFailed:
		return color.RedString(string(stage))
	case journal.StageTimeout:
		return color.MagentaString(string(stage))
	case journal.StageCancelled:
		return color.HiBlackString(string(stage))
	default:
		return color.YellowString(string(stage))
	}
}
