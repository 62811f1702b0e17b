package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxUint256 is the largest amount the hub contracts accept
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// FitsUint256 reports whether v is a non-negative uint256
func FitsUint256(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(MaxUint256) <= 0
}

// BridgeParams describes a direct cross-chain transfer
type BridgeParams struct {
	SrcChain   ChainID
	From       string   // Sender address on the source chain
	SrcAsset   string   // Token address on the source chain
	Amount     *big.Int // In source token base units
	DstChain   ChainID
	DstAsset   string // Token address on the destination chain
	Recipient  string // Address on the destination chain
	PartnerFee *PartnerFee
}

// Validate checks the fields that do not need the registry
func (p *BridgeParams) Validate() error {
	if p.SrcChain == "" || p.DstChain == "" {
		return fmt.Errorf("source and destination chains are required")
	}
	if p.SrcAsset == "" || p.DstAsset == "" {
		return fmt.Errorf("source and destination assets are required")
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !FitsUint256(p.Amount) {
		return fmt.Errorf("%w: %s exceeds uint256", ErrInvalidAmount, p.Amount)
	}
	if p.From == "" || p.Recipient == "" {
		return fmt.Errorf("sender and recipient addresses are required")
	}
	return p.PartnerFee.Validate()
}

// CreateIntentParams describes a solver swap request
type CreateIntentParams struct {
	InputToken       string // Token address on SrcChain
	OutputToken      string // Token address on DstChain
	InputAmount      *big.Int
	MinOutputAmount  *big.Int
	Deadline         uint64 // Unix seconds, 0 for none
	AllowPartialFill bool
	SrcChain         ChainID
	DstChain         ChainID
	SrcAddress       string // Creator address on SrcChain
	DstAddress       string // Recipient address on DstChain
	Solver           common.Address
	Data             []byte
}

// Validate checks the fields that do not need the registry
func (p *CreateIntentParams) Validate() error {
	if p.SrcChain == "" || p.DstChain == "" {
		return fmt.Errorf("source and destination chains are required")
	}
	if p.InputToken == "" || p.OutputToken == "" {
		return fmt.Errorf("input and output tokens are required")
	}
	if p.InputAmount == nil || p.InputAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !FitsUint256(p.InputAmount) {
		return fmt.Errorf("%w: %s exceeds uint256", ErrInvalidAmount, p.InputAmount)
	}
	if p.MinOutputAmount == nil || p.MinOutputAmount.Sign() < 0 {
		return fmt.Errorf("min output amount must not be negative")
	}
	if !FitsUint256(p.MinOutputAmount) {
		return fmt.Errorf("min output amount %s exceeds uint256", p.MinOutputAmount)
	}
	if p.SrcAddress == "" || p.DstAddress == "" {
		return fmt.Errorf("source and destination addresses are required")
	}
	return nil
}

// QuoteRequest asks the solver for a price
type QuoteRequest struct {
	TokenSrc      string
	TokenDst      string
	TokenSrcChain ChainID
	TokenDstChain ChainID
	Amount        *big.Int
	QuoteType     QuoteType
}
