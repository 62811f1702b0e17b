package hub

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"hub-settle/pkg/types"
)

type abiCall struct {
	Addr  common.Address
	Value *big.Int
	Data  []byte
}

type abiIntent struct {
	IntentId         *big.Int
	Creator          common.Address
	InputToken       common.Address
	OutputToken      common.Address
	InputAmount      *big.Int
	MinOutputAmount  *big.Int
	Deadline         *big.Int
	AllowPartialFill bool
	SrcChain         *big.Int
	DstChain         *big.Int
	SrcAddress       []byte
	DstAddress       []byte
	Solver           common.Address
	Data             []byte
}

var (
	callsArgs  abi.Arguments
	intentArgs abi.Arguments
	feeArgs    abi.Arguments
	saltArgs   abi.Arguments
)

func init() {
	callsType, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "addr", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	callsArgs = abi.Arguments{{Type: callsType}}

	intentType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "intentId", Type: "uint256"},
		{Name: "creator", Type: "address"},
		{Name: "inputToken", Type: "address"},
		{Name: "outputToken", Type: "address"},
		{Name: "inputAmount", Type: "uint256"},
		{Name: "minOutputAmount", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "allowPartialFill", Type: "bool"},
		{Name: "srcChain", Type: "uint256"},
		{Name: "dstChain", Type: "uint256"},
		{Name: "srcAddress", Type: "bytes"},
		{Name: "dstAddress", Type: "bytes"},
		{Name: "solver", Type: "address"},
		{Name: "data", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	intentArgs = abi.Arguments{{Type: intentType}}

	uint8Type, _ := abi.NewType("uint8", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	addressType, _ := abi.NewType("address", "", nil)
	bytesType, _ := abi.NewType("bytes", "", nil)
	feeArgs = abi.Arguments{{Type: uint8Type}, {Type: addressType}, {Type: uint256Type}}
	saltArgs = abi.Arguments{{Type: uint256Type}, {Type: bytesType}}
}

// EncodeContractCalls ABI-encodes a payload as (address,uint256,bytes)[]
func EncodeContractCalls(calls []types.ContractCall) ([]byte, error) {
	encoded := make([]abiCall, len(calls))
	for i, c := range calls {
		value := c.Value
		if value == nil {
			value = new(big.Int)
		}
		data := c.Data
		if data == nil {
			data = []byte{}
		}
		encoded[i] = abiCall{Addr: c.Address, Value: value, Data: data}
	}
	packed, err := callsArgs.Pack(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to encode contract calls: %w", err)
	}
	return packed, nil
}

// DecodeContractCalls reverses EncodeContractCalls
func DecodeContractCalls(payload []byte) ([]types.ContractCall, error) {
	values, err := callsArgs.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode contract calls: %w", err)
	}
	decoded := *abi.ConvertType(values[0], new([]abiCall)).(*[]abiCall)
	calls := make([]types.ContractCall, len(decoded))
	for i, c := range decoded {
		calls[i] = types.ContractCall{Address: c.Addr, Value: c.Value, Data: c.Data}
	}
	return calls, nil
}

func toABIIntent(intent *types.Intent) abiIntent {
	orZero := func(v *big.Int) *big.Int {
		if v == nil {
			return new(big.Int)
		}
		return v
	}
	orEmpty := func(b []byte) []byte {
		if b == nil {
			return []byte{}
		}
		return b
	}
	return abiIntent{
		IntentId:         orZero(intent.IntentID),
		Creator:          intent.Creator,
		InputToken:       intent.InputToken,
		OutputToken:      intent.OutputToken,
		InputAmount:      orZero(intent.InputAmount),
		MinOutputAmount:  orZero(intent.MinOutputAmount),
		Deadline:         orZero(intent.Deadline),
		AllowPartialFill: intent.AllowPartialFill,
		SrcChain:         new(big.Int).SetUint64(uint64(intent.SrcChain)),
		DstChain:         new(big.Int).SetUint64(uint64(intent.DstChain)),
		SrcAddress:       orEmpty(intent.SrcAddress),
		DstAddress:       orEmpty(intent.DstAddress),
		Solver:           intent.Solver,
		Data:             orEmpty(intent.Data),
	}
}

// IntentHash is the canonical identity of an intent: keccak256 over the
// ABI-encoded tuple.
func IntentHash(intent *types.Intent) (common.Hash, error) {
	packed, err := intentArgs.Pack(toABIIntent(intent))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode intent: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// EncodeIntentFeeData describes a partner fee inside Intent.Data
func EncodeIntentFeeData(receiver common.Address, amount *big.Int) ([]byte, error) {
	// fee data type 1 is a flat fee paid from the input token
	packed, err := feeArgs.Pack(uint8(1), receiver, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fee data: %w", err)
	}
	return packed, nil
}

// WalletSalt is the CREATE2 salt of a hub wallet
func WalletSalt(relayChainID types.RelayChainID, address []byte) ([32]byte, error) {
	packed, err := saltArgs.Pack(new(big.Int).SetUint64(uint64(relayChainID)), address)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode wallet salt: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

func mustPack(contract abi.ABI, method string, args ...interface{}) []byte {
	data, err := contract.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("hub: pack %s: %v", method, err))
	}
	return data
}

// ApproveCall approves spender to move amount of token
func ApproveCall(token, spender common.Address, amount *big.Int) types.ContractCall {
	return types.ContractCall{Address: token, Value: new(big.Int), Data: mustPack(ERC20ABI, "approve", spender, amount)}
}

// TransferCall transfers amount of token to recipient
func TransferCall(token, recipient common.Address, amount *big.Int) types.ContractCall {
	return types.ContractCall{Address: token, Value: new(big.Int), Data: mustPack(ERC20ABI, "transfer", recipient, amount)}
}

// VaultDepositCall deposits token into vault
func VaultDepositCall(vault, token common.Address, amount *big.Int) types.ContractCall {
	return types.ContractCall{Address: vault, Value: new(big.Int), Data: mustPack(VaultABI, "deposit", token, amount)}
}

// VaultWithdrawCall withdraws token from vault
func VaultWithdrawCall(vault, token common.Address, amount *big.Int) types.ContractCall {
	return types.ContractCall{Address: vault, Value: new(big.Int), Data: mustPack(VaultABI, "withdraw", token, amount)}
}

// UnwrapCall unwraps the hub wrapped native token
func UnwrapCall(wrapped common.Address, amount *big.Int) types.ContractCall {
	return types.ContractCall{Address: wrapped, Value: new(big.Int), Data: mustPack(WrappedNativeABI, "withdraw", amount)}
}

// NativeTransferCall sends hub native value to recipient
func NativeTransferCall(recipient common.Address, amount *big.Int) types.ContractCall {
	return types.ContractCall{Address: recipient, Value: new(big.Int).Set(amount), Data: []byte{}}
}

// AssetManagerTransferCall releases token on a spoke chain to the encoded recipient
func AssetManagerTransferCall(assetManager, token common.Address, to []byte, amount *big.Int) types.ContractCall {
	return types.ContractCall{Address: assetManager, Value: new(big.Int), Data: mustPack(AssetManagerABI, "transfer", token, to, amount, []byte{})}
}

// CreateIntentCall registers intent on the intents contract
func CreateIntentCall(intents common.Address, intent *types.Intent) types.ContractCall {
	return types.ContractCall{Address: intents, Value: new(big.Int), Data: mustPack(IntentsABI, "createIntent", toABIIntent(intent))}
}

// CancelIntentCall cancels intent on the intents contract
func CancelIntentCall(intents common.Address, intent *types.Intent) types.ContractCall {
	return types.ContractCall{Address: intents, Value: new(big.Int), Data: mustPack(IntentsABI, "cancelIntent", toABIIntent(intent))}
}
