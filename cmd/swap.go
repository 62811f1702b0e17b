package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hub-settle/pkg/intent"
	"hub-settle/pkg/parser"
	"hub-settle/pkg/solver"
	"hub-settle/pkg/types"
)

var (
	slippageBps  uint32
	deadlineFlag time.Duration
	partialFill  bool
	solverAddr   string
	waitSolved   bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <token>@<chain> to <token>@<chain>",
	Short: "Swap tokens across chains through a solver intent",
	Long: `Create a swap intent on the hub. The input tokens are deposited into your hub
wallet, which locks them in the intents contract. A solver fills the intent and
delivers the output tokens to the recipient on the destination chain.

IMPORTANT:
  - You MUST specify --recipient (where you'll receive tokens)
  - The minimum output is the quote minus the slippage tolerance
  - A pending intent can be cancelled with 'hub-settle cancel <journal-id>'

Examples:
  hub-settle swap 1 ETH@base to USDC@solana --recipient <solana-addr>
  hub-settle swap 100 USDC@bsc to wS@sonic --recipient 0x123... --slippage-bps 50
  hub-settle swap 100 USDC@bsc to ETH@base --recipient 0x123... --deadline 30m --wait
  hub-settle swap 1 ETH@base to USDC@solana --recipient <solana-addr> --dry-run`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&fromAddr, "from", "", "Creator address on the source chain (defaults to the configured key)")
	swapCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address on the destination chain (REQUIRED)")
	swapCmd.Flags().StringVar(&feeAddr, "fee-to", "", "Partner fee receiver on the hub")
	swapCmd.Flags().Uint32Var(&feeBps, "fee-bps", 0, "Partner fee in basis points, charged on top of the input")
	swapCmd.Flags().Uint32Var(&slippageBps, "slippage-bps", 0, "Slippage tolerance in basis points (defaults to config)")
	swapCmd.Flags().DurationVar(&deadlineFlag, "deadline", 0, "Intent lifetime, 0 for none")
	swapCmd.Flags().BoolVar(&partialFill, "partial", false, "Allow partial fills")
	swapCmd.Flags().StringVar(&solverAddr, "solver", "", "Restrict the intent to one solver")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	swapCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Prepare the deposit without sending it")
	swapCmd.Flags().BoolVar(&waitSolved, "wait", false, "Wait until the solver fills the intent")
	swapCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "How long to wait for hub execution (defaults to config)")
}

func runSwap(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := loadApp(cmd, true)
	if err != nil {
		fail(err)
	}

	resolved, err := resolveCommand(a, args)
	if err != nil {
		fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	quote, err := a.intents.GetQuote(ctx, types.QuoteRequest{
		TokenSrc:      resolved.Src.Address,
		TokenDst:      resolved.Dst.Address,
		TokenSrcChain: resolved.SrcChain,
		TokenDstChain: resolved.DstChain,
		Amount:        resolved.Amount,
		QuoteType:     types.QuoteExactInput,
	})
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		fail(err)
	}

	price, err := solver.PriceFromQuote(resolved.Amount, resolved.Src.Decimals, quote, resolved.Dst.Decimals)
	if err != nil {
		fail(err)
	}
	quoted, _ := new(big.Int).SetString(quote.QuotedAmount, 10)

	slippage := slippageBps
	if slippage == 0 {
		slippage = a.cfg.SlippageBps
	}
	minOut := solver.MinOutput(quoted, slippage)

	params := &types.CreateIntentParams{
		InputToken:       resolved.Src.Address,
		OutputToken:      resolved.Dst.Address,
		InputAmount:      resolved.Amount,
		MinOutputAmount:  minOut,
		AllowPartialFill: partialFill,
		SrcChain:         resolved.SrcChain,
		DstChain:         resolved.DstChain,
		SrcAddress:       fromAddr,
		DstAddress:       recipientAddr,
	}
	if params.SrcAddress == "" {
		params.SrcAddress = a.sender(params.SrcChain)
	}
	if deadlineFlag > 0 {
		params.Deadline = uint64(time.Now().Add(deadlineFlag).Unix())
	}
	if solverAddr != "" {
		if !common.IsHexAddress(solverAddr) {
			fail(fmt.Errorf("invalid solver address %q", solverAddr))
		}
		params.Solver = common.HexToAddress(solverAddr)
	}
	if err := params.Validate(); err != nil {
		fail(err)
	}
	fee, err := partnerFee()
	if err != nil {
		fail(err)
	}

	if !jsonOutput {
		displayQuote(resolved, price, minOut, slippage)
	}

	if dryRun {
		runSwapDryRun(ctx, a, params, fee, jsonOutput)
		return
	}

	if !noConfirm && !jsonOutput {
		if !confirm("Proceed with swap?") {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	timeout := timeoutFlag
	if timeout == 0 {
		timeout = a.cfg.Timeout
	}

	if !jsonOutput {
		s.Suffix = " Creating intent and waiting for hub execution..."
		s.Start()
	}
	settlement, err := a.intents.CreateAndSubmitIntent(ctx, params, fee, timeout)
	if !jsonOutput {
		s.Stop()
	}
	if errors.Is(err, types.ErrPostExecutionFailed) && settlement != nil {
		if !jsonOutput {
			color.Yellow("\nThe intent was executed on the hub but the solver was not notified: %v", err)
			color.Yellow("Retry with 'hub-settle recover notify %s'\n", settlement.JournalID)
		}
	} else if err != nil {
		fail(err)
	}

	hubTx := settlement.Packet.DstTxHash
	if jsonOutput && !waitSolved {
		printJSON(map[string]interface{}{
			"intent_id":     settlement.Intent.IntentID.String(),
			"spoke_tx_hash": settlement.SpokeTxHash,
			"hub_tx_hash":   hubTx,
			"journal_id":    settlement.JournalID,
			"state":         settlement.State,
			"history":       settlement.History,
		})
		return
	}
	if !jsonOutput {
		displaySettlement(settlement)
	}

	if waitSolved {
		waitForSolver(ctx, a, hubTx, timeout, jsonOutput)
		return
	}

	if !jsonOutput {
		fmt.Println("You can monitor the solver status using:")
		color.Cyan("  hub-settle status %s\n", hubTx)
	}
}

func runSwapDryRun(ctx context.Context, a *app, params *types.CreateIntentParams, fee *types.PartnerFee, jsonOutput bool) {
	created, err := a.intents.CreateIntent(ctx, params, fee, true)
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"intent":      created.Intent,
			"intent_hash": created.IntentHash.Hex(),
			"hub_wallet":  created.HubWallet.Hex(),
			"status":      "prepared",
		})
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   SWAP DRY RUN")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Intent ID:    %s\n", created.Intent.IntentID)
	fmt.Printf("  Intent Hash:  %s\n", color.CyanString(created.IntentHash.Hex()))
	fmt.Printf("  Hub Wallet:   %s\n", created.HubWallet.Hex())
	fmt.Printf("  Deposit:      %s (input %s + fee %s)\n",
		new(big.Int).Add(created.Intent.InputAmount, created.Intent.FeeAmount),
		created.Intent.InputAmount, created.Intent.FeeAmount)
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func waitForSolver(ctx context.Context, a *app, hubTx string, timeout time.Duration, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Waiting for a solver to fill the intent..."
		s.Start()
	}
	status, err := a.intents.WaitUntilSolved(ctx, hubTx, timeout)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		printJSON(status)
		return
	}
	displayStatus(status, hubTx)
}

func displayQuote(resolved *parser.Resolved, price *solver.PriceInfo, minOut *big.Int, slippage uint32) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s on %s\n", price.AmountIn, color.YellowString(resolved.Src.Symbol), resolved.SrcChain)
	fmt.Printf("  To:                ~%s %s on %s\n", price.AmountOut, color.YellowString(resolved.Dst.Symbol), resolved.DstChain)
	fmt.Printf("  Price:             %s %s per %s\n", price.Price.StringFixed(6), resolved.Dst.Symbol, resolved.Src.Symbol)
	fmt.Printf("  Minimum Received:  %s %s (%.2f%% slippage)\n",
		parser.FormatUnits(minOut, resolved.Dst.Decimals), resolved.Dst.Symbol, float64(slippage)/100)

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func displaySettlement(settlement *intent.Settlement) {
	color.Green("\n✓ Intent created on the hub")
	fmt.Printf("  Intent ID:  %s\n", settlement.Intent.IntentID)
	fmt.Printf("  Spoke Tx:   %s\n", color.CyanString(settlement.SpokeTxHash))
	fmt.Printf("  Hub Tx:     %s\n", color.CyanString(settlement.Packet.DstTxHash))
	fmt.Printf("  State:      %s\n", getColoredState(settlement.State))
	if len(settlement.History) > 1 {
		steps := make([]string, len(settlement.History))
		for i, state := range settlement.History {
			steps[i] = string(state)
		}
		fmt.Printf("  Progress:   %s\n", color.HiBlackString(strings.Join(steps, " → ")))
	}
	if settlement.JournalID != "" {
		fmt.Printf("  Journal ID: %s\n", color.HiBlackString(settlement.JournalID))
	}
	if !settlement.State.Terminal() {
		color.Yellow("\nThe intent has not settled yet. Follow it with 'hub-settle recover check %s'.", settlement.JournalID)
	}
	fmt.Println()
}

func getColoredState(state types.IntentState) string {
	switch state {
	case types.IntentExecuted:
		return color.GreenString(string(state))
	case types.IntentFailed, types.IntentTimeout:
		return color.RedString(string(state))
	case types.IntentCancelled:
		return color.MagentaString(string(state))
	default:
		return color.YellowString(string(state))
	}
}
