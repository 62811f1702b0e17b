package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hub-settle/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:   "hub-settle",
	Short: "A CLI for cross-chain bridging and solver intents through a hub chain",
	Long: `hub-settle moves tokens between spoke chains through the hub chain vaults.
Deposits are sent on the source chain, relayed to the hub and executed by your
hub wallet. Bridges settle directly; swaps create an intent a solver fills.

Examples:
  hub-settle bridge 10 USDC@base to USDC@solana --recipient <solana-addr>
  hub-settle swap 1 ETH@base to USDC@bsc --recipient 0x123...
  hub-settle limit USDC@bsc USDC@base
  hub-settle list-tokens --chain base
  hub-settle recover list`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n", err)

	var se *types.SettlementError
	if errors.As(err, &se) {
		fmt.Printf("  Code:    %s\n", color.RedString(string(se.Code)))
		if se.TxHash != "" {
			fmt.Printf("  Chain:   %s\n", se.ChainID)
			fmt.Printf("  Tx Hash: %s\n", color.HiBlackString(se.TxHash))
		}
		if se.Critical() {
			color.Yellow("  The deposit was sent but never reached the relay. Run 'hub-settle recover list' to resubmit it.")
		}
	}
	fmt.Println()
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}

func fail(err error) {
	printError(err)
	os.Exit(1)
}
