package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hub-settle/pkg/types"
)

var packetsCmd = &cobra.Command{
	Use:   "packets <chain> <tx-hash>",
	Short: "Show the relay packets of a spoke transaction",
	Long: `Query the relay for the cross-chain packets emitted by a transaction.

Examples:
  hub-settle packets base 0x1234...abcd
  hub-settle packets solana 5Kd3...`,
	Args: cobra.ExactArgs(2),
	Run:  runPackets,
}

func init() {
	rootCmd.AddCommand(packetsCmd)
}

func runPackets(cmd *cobra.Command, args []string) {
	chainID, txHash := types.ChainID(strings.ToLower(args[0])), args[1]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := loadApp(cmd, false)
	if err != nil {
		fail(err)
	}
	relayChainID, err := a.registry.RelayChainID(chainID)
	if err != nil {
		fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Querying relay..."
		s.Start()
	}
	packets, err := a.relay.GetPackets(ctx, relayChainID, txHash)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		printJSON(packets)
		return
	}

	if len(packets) == 0 {
		fmt.Println("\nThe relay has not seen this transaction yet.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       RELAY PACKETS")
	fmt.Println(strings.Repeat("=", 70))
	for i, p := range packets {
		fmt.Printf("\n  Packet %d\n", i+1)
		fmt.Printf("  Status:      %s\n", getColoredPacketStatus(p.Status))
		fmt.Printf("  Source:      %s (relay chain %d)\n", color.HiBlackString(p.SrcTxHash), p.SrcChainID)
		if p.DstTxHash != "" {
			fmt.Printf("  Destination: %s (relay chain %d)\n", color.CyanString(p.DstTxHash), p.DstChainID)
		}
	}
	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredPacketStatus(status types.PacketStatus) string {
	s := strings.ToUpper(string(status))
	switch types.PacketStatus(strings.ToLower(string(status))) {
	case types.PacketExecuted:
		return color.GreenString(s)
	case types.PacketFailed:
		return color.RedString(s)
	default:
		return color.YellowString(s)
	}
}
