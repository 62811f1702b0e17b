package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hub-settle/pkg/parser"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/vault"
)

var limitCmd = &cobra.Command{
	Use:   "limit <token>@<chain> <token>@<chain>",
	Short: "Show how much can currently be bridged between two tokens",
	Long: `Compute the current bridge limit between two tokens of the same hub vault.
The limit is the smaller of the vault deposit headroom on the source side and
the asset manager balance on the destination side.

Examples:
  hub-settle limit USDC@bsc USDC@base
  hub-settle limit ETH@base ETH@sonic`,
	Args: cobra.ExactArgs(2),
	Run:  runLimit,
}

func init() {
	rootCmd.AddCommand(limitCmd)
}

func runLimit(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := loadApp(cmd, false)
	if err != nil {
		fail(err)
	}

	from, fromAsset, err := tokenRef(a.registry, args[0])
	if err != nil {
		fail(err)
	}
	to, _, err := tokenRef(a.registry, args[1])
	if err != nil {
		fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Reading vault state..."
		s.Start()
	}
	limit, err := a.bridge.GetBridgeableAmount(ctx, from, to)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"from":     from.String(),
			"to":       to.String(),
			"amount":   limit.Amount.String(),
			"decimals": limit.Decimals,
			"kind":     limit.Kind,
		})
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     BRIDGE LIMIT")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  From:      %s\n", args[0])
	fmt.Printf("  To:        %s\n", args[1])
	fmt.Printf("  Available: %s %s\n", color.CyanString(parser.FormatUnits(limit.Amount, limit.Decimals)), color.YellowString(fromAsset.Symbol))
	fmt.Printf("  Bound By:  %s\n", limit.Kind)
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func tokenRef(reg *registry.Registry, ref string) (vault.Token, registry.Asset, error) {
	symbol, chainID, err := parser.ParseAssetRef(ref)
	if err != nil {
		return vault.Token{}, registry.Asset{}, err
	}
	asset, err := reg.AssetBySymbol(chainID, symbol)
	if err != nil {
		return vault.Token{}, registry.Asset{}, err
	}
	return vault.Token{Chain: chainID, Address: asset.Address}, asset, nil
}
