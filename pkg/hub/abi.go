package hub

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const intentTupleComponents = `[
	{"name":"intentId","type":"uint256"},
	{"name":"creator","type":"address"},
	{"name":"inputToken","type":"address"},
	{"name":"outputToken","type":"address"},
	{"name":"inputAmount","type":"uint256"},
	{"name":"minOutputAmount","type":"uint256"},
	{"name":"deadline","type":"uint256"},
	{"name":"allowPartialFill","type":"bool"},
	{"name":"srcChain","type":"uint256"},
	{"name":"dstChain","type":"uint256"},
	{"name":"srcAddress","type":"bytes"},
	{"name":"dstAddress","type":"bytes"},
	{"name":"solver","type":"address"},
	{"name":"data","type":"bytes"}
]`

var (
	// ERC20ABI covers the token calls used for allowances and custody reads
	ERC20ABI = mustParseABI(`[
		{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
	]`)

	// VaultABI is the hub vault pooling spoke assets
	VaultABI = mustParseABI(`[
		{"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"name":"token","type":"address"}],"name":"getTokenInfo","outputs":[{"name":"decimals","type":"uint8"},{"name":"depositFee","type":"uint256"},{"name":"withdrawalFee","type":"uint256"},{"name":"maxDeposit","type":"uint256"},{"name":"isSupported","type":"bool"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"getVaultReserves","outputs":[{"name":"tokens","type":"address[]"},{"name":"balances","type":"uint256[]"}],"stateMutability":"view","type":"function"}
	]`)

	// AssetManagerABI is the hub asset manager releasing funds to spokes
	AssetManagerABI = mustParseABI(`[
		{"inputs":[{"name":"token","type":"address"},{"name":"to","type":"bytes"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"name":"transfer","outputs":[],"stateMutability":"payable","type":"function"}
	]`)

	// WrappedNativeABI unwraps the hub native token
	WrappedNativeABI = mustParseABI(`[
		{"inputs":[{"name":"amount","type":"uint256"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`)

	// WalletFactoryABI derives hub wallets and hosts the payload simulation
	WalletFactoryABI = mustParseABI(`[
		{"inputs":[{"name":"chainId","type":"uint256"},{"name":"wallet","type":"bytes"}],"name":"getDeployedAddress","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"proxyCodeHash","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"srcChainId","type":"uint256"},{"name":"srcAddress","type":"bytes"},{"name":"payload","type":"bytes"}],"name":"simulateRecvMessage","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`)

	// IntentsABI is the hub intents contract
	IntentsABI = mustParseABI(`[
		{"inputs":[{"name":"intent","type":"tuple","components":` + intentTupleComponents + `}],"name":"createIntent","outputs":[],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"name":"intent","type":"tuple","components":` + intentTupleComponents + `}],"name":"cancelIntent","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`)

	// SpokeAssetManagerABI is the EVM spoke custody contract
	SpokeAssetManagerABI = mustParseABI(`[
		{"inputs":[{"name":"token","type":"address"},{"name":"to","type":"bytes"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"name":"transfer","outputs":[],"stateMutability":"payable","type":"function"}
	]`)

	// ConnectionABI is the EVM spoke messaging contract
	ConnectionABI = mustParseABI(`[
		{"inputs":[{"name":"dstChainId","type":"uint256"},{"name":"dstAddress","type":"bytes"},{"name":"payload","type":"bytes"}],"name":"sendMessage","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`)

	// UserRouterABI is the per-account router used by hub-local users
	UserRouterABI = mustParseABI(`[
		{"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"name":"route","outputs":[],"stateMutability":"payable","type":"function"},
		{"inputs":[{"name":"payload","type":"bytes"}],"name":"execute","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
