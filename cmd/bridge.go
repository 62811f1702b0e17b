package cmd

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"hub-settle/pkg/parser"
	"hub-settle/pkg/types"
	"hub-settle/pkg/vault"
)

var (
	fromAddr      string
	recipientAddr string
	feeAddr       string
	feeBps        uint32
	noConfirm     bool
	dryRun        bool
	autoApprove   bool
	timeoutFlag   time.Duration
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge <amount> <token>@<chain> to <token>@<chain>",
	Short: "Bridge tokens between chains through a shared hub vault",
	Long: `Bridge tokens directly from one chain to another. Both tokens must share
the same hub vault (for example USDC on Base and USDC on Solana).

The deposit is sent on the source chain, verified, relayed to the hub and
executed by your hub wallet, which releases the tokens on the destination chain.

Examples:
  hub-settle bridge 10 USDC@base to USDC@solana --recipient <solana-addr>
  hub-settle bridge 0.5 ETH@base to ETH@arbitrum --recipient 0x123... --approve
  hub-settle bridge 100 USDC@bsc to USDC@base --recipient 0x123... --fee-to 0xabc... --fee-bps 25
  hub-settle bridge 10 USDC@base to USDC@solana --recipient <solana-addr> --dry-run`,
	Args: cobra.MinimumNArgs(1),
	Run:  runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)

	bridgeCmd.Flags().StringVar(&fromAddr, "from", "", "Sender address on the source chain (defaults to the configured key)")
	bridgeCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address on the destination chain (REQUIRED)")
	bridgeCmd.Flags().StringVar(&feeAddr, "fee-to", "", "Partner fee receiver on the hub")
	bridgeCmd.Flags().Uint32Var(&feeBps, "fee-bps", 0, "Partner fee in basis points")
	bridgeCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	bridgeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Prepare the deposit without sending it")
	bridgeCmd.Flags().BoolVar(&autoApprove, "approve", false, "Send a token approval when the allowance is too low")
	bridgeCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "How long to wait for hub execution (defaults to config)")
}

func runBridge(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := loadApp(cmd, false)
	if err != nil {
		fail(err)
	}

	resolved, err := resolveCommand(a, args)
	if err != nil {
		fail(err)
	}

	params := &types.BridgeParams{
		SrcChain:  resolved.SrcChain,
		From:      fromAddr,
		SrcAsset:  resolved.Src.Address,
		Amount:    resolved.Amount,
		DstChain:  resolved.DstChain,
		DstAsset:  resolved.Dst.Address,
		Recipient: recipientAddr,
	}
	if params.From == "" {
		params.From = a.sender(params.SrcChain)
	}
	if params.PartnerFee, err = partnerFee(); err != nil {
		fail(err)
	}
	if err := params.Validate(); err != nil {
		fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	limit, err := a.bridge.GetBridgeableAmount(ctx,
		vault.Token{Chain: params.SrcChain, Address: params.SrcAsset},
		vault.Token{Chain: params.DstChain, Address: params.DstAsset},
	)
	if err != nil {
		fail(err)
	}
	available := decimal.NewFromBigInt(limit.Amount, -int32(limit.Decimals))
	if available.LessThan(decimal.NewFromBigInt(params.Amount, -int32(resolved.Src.Decimals))) {
		fail(fmt.Errorf("amount exceeds the bridgeable limit of %s %s (%s)",
			available, resolved.Src.Symbol, limit.Kind))
	}

	if !ensureAllowance(ctx, a, params, jsonOutput) {
		os.Exit(1)
	}

	if dryRun {
		runBridgeDryRun(ctx, a, params, jsonOutput)
		return
	}

	if !jsonOutput {
		displayBridge(resolved, params)
	}
	if !noConfirm && !jsonOutput {
		if !confirm("Proceed with bridge?") {
			fmt.Println("\nBridge cancelled.")
			os.Exit(0)
		}
	}

	timeout := timeoutFlag
	if timeout == 0 {
		timeout = a.cfg.Timeout
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Sending deposit and waiting for hub execution..."
		s.Start()
	}
	result, err := a.bridge.Bridge(ctx, params, timeout)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"spoke_tx_hash": result.SpokeTxHash,
			"hub_tx_hash":   result.HubTxHash,
			"journal_id":    result.JournalID,
			"status":        "executed",
		})
		return
	}

	color.Green("\n✓ Bridge executed on the hub")
	fmt.Printf("  Spoke Tx:   %s\n", color.CyanString(result.SpokeTxHash))
	fmt.Printf("  Hub Tx:     %s\n", color.CyanString(result.HubTxHash))
	if result.JournalID != "" {
		fmt.Printf("  Journal ID: %s\n", color.HiBlackString(result.JournalID))
	}
	fmt.Println()
}

func runBridgeDryRun(ctx context.Context, a *app, params *types.BridgeParams, jsonOutput bool) {
	created, err := a.bridge.CreateBridgeIntent(ctx, params, true)
	if err != nil {
		fail(err)
	}

	adapter, err := a.adapter(params.SrcChain)
	if err != nil {
		fail(err)
	}
	fee, feeErr := adapter.EstimateFee(ctx, created.Handle)

	if jsonOutput {
		output := map[string]interface{}{
			"hub_wallet": created.HubWallet.Hex(),
			"calls":      len(created.Calls),
			"payload":    "0x" + hex.EncodeToString(created.Payload),
			"status":     "prepared",
		}
		if feeErr == nil {
			output["fee"] = fee.Amount.String()
			output["fee_unit"] = fee.Unit
		}
		printJSON(output)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   BRIDGE DRY RUN")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Hub Wallet:  %s\n", color.CyanString(created.HubWallet.Hex()))
	fmt.Printf("  Hub Calls:   %d\n", len(created.Calls))
	for i, call := range created.Calls {
		fmt.Printf("    %d. %s\n", i+1, color.HiBlackString(call.Address.Hex()))
	}
	if feeErr != nil {
		fmt.Printf("  Network Fee: %s\n", color.YellowString("unavailable (%v)", feeErr))
	} else {
		fmt.Printf("  Network Fee: %s %s\n", fee.Amount, fee.Unit)
	}
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

// ensureAllowance checks the spoke allowance and approves when asked to
func ensureAllowance(ctx context.Context, a *app, params *types.BridgeParams, jsonOutput bool) bool {
	ok, err := a.bridge.IsAllowanceValid(ctx, params)
	if err != nil {
		printError(err)
		return false
	}
	if ok {
		return true
	}
	if !autoApprove {
		printError(fmt.Errorf("allowance of %s is too low, re-run with --approve", params.From))
		return false
	}
	if dryRun {
		if !jsonOutput {
			color.Yellow("\nAllowance is too low; an approval would be sent first.")
		}
		return true
	}

	handle, err := a.bridge.Approve(ctx, params)
	if err != nil {
		printError(err)
		return false
	}
	if !jsonOutput {
		color.Green("\n✓ Approval sent")
		fmt.Printf("  Tx Hash: %s\n", color.CyanString(handle.Hash))
	}
	return true
}

func resolveCommand(a *app, args []string) (*parser.Resolved, error) {
	req, err := parser.ParseCommand(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	return parser.Resolve(a.registry, req, a.registry.Hub().ChainID, a.registry.Hub().ChainID)
}

func partnerFee() (*types.PartnerFee, error) {
	if feeAddr == "" && feeBps == 0 {
		return nil, nil
	}
	if !common.IsHexAddress(feeAddr) {
		return nil, fmt.Errorf("invalid fee receiver %q", feeAddr)
	}
	fee := &types.PartnerFee{Address: common.HexToAddress(feeAddr), Percentage: feeBps}
	return fee, fee.Validate()
}

func displayBridge(resolved *parser.Resolved, params *types.BridgeParams) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                       BRIDGE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:        %s %s on %s\n", parser.FormatUnits(params.Amount, resolved.Src.Decimals), color.YellowString(resolved.Src.Symbol), params.SrcChain)
	fmt.Printf("  To:          %s on %s\n", color.YellowString(resolved.Dst.Symbol), params.DstChain)
	fmt.Printf("  Sender:      %s\n", params.From)
	fmt.Printf("  Recipient:   %s\n", color.CyanString(params.Recipient))
	if params.PartnerFee != nil {
		fmt.Printf("  Partner Fee: %d bps to %s\n", params.PartnerFee.Percentage, params.PartnerFee.Address.Hex())
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
