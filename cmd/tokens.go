package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

var (
	filterChain  string
	filterSymbol string
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List all configured tokens",
	Long: `List all tokens of the chain registry with the hub vault each one belongs to.
Tokens sharing a vault can be bridged to each other.

You can filter tokens by chain or symbol.

Examples:
  hub-settle list-tokens
  hub-settle list-tokens --chain solana
  hub-settle list-tokens --symbol USDC`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by chain")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

type tokenRow struct {
	Chain    types.ChainID     `json:"chain"`
	Family   types.ChainFamily `json:"family"`
	Symbol   string            `json:"symbol"`
	Address  string            `json:"address"`
	Decimals uint8             `json:"decimals"`
	HubAsset string            `json:"hub_asset"`
	Vault    string            `json:"vault"`
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	_, reg, err := loadRegistry(cmd)
	if err != nil {
		fail(err)
	}

	rows := filterTokens(reg, filterChain, filterSymbol)

	if jsonOutput {
		printJSON(rows)
	} else {
		displayTokens(reg, rows)
	}
}

func filterTokens(reg *registry.Registry, chain, symbol string) []tokenRow {
	var rows []tokenRow
	for _, c := range reg.Chains() {
		if chain != "" && !strings.EqualFold(string(c.ID), chain) {
			continue
		}
		for _, asset := range reg.Assets(c.ID) {
			if symbol != "" && !strings.Contains(strings.ToUpper(asset.Symbol), strings.ToUpper(symbol)) {
				continue
			}
			rows = append(rows, tokenRow{
				Chain:    c.ID,
				Family:   c.Family,
				Symbol:   asset.Symbol,
				Address:  asset.Address,
				Decimals: asset.Decimals,
				HubAsset: asset.HubAsset.Hex(),
				Vault:    asset.Vault.Hex(),
			})
		}
	}
	return rows
}

func displayTokens(reg *registry.Registry, rows []tokenRow) {
	if len(rows) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            CONFIGURED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	chains := 0
	var current types.ChainID
	for _, row := range rows {
		if row.Chain != current {
			current = row.Chain
			chains++
			label := strings.ToUpper(string(row.Chain))
			if reg.IsHub(row.Chain) {
				label += " (hub)"
			}
			color.Cyan("\n%s  [%s]", label, row.Family)
			fmt.Println(strings.Repeat("-", 90))
		}

		address := row.Address
		if len(address) > 44 {
			address = address[:41] + "..."
		}

		fmt.Printf("  %-10s  %2d decimals  %-44s  vault %s\n",
			color.YellowString(row.Symbol),
			row.Decimals,
			color.HiBlackString(address),
			row.Vault)
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d chains\n\n", len(rows), chains)
}
