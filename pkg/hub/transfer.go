package hub

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// TransferMessage is the cross-chain body carried from a spoke asset manager
// to the hub. Addresses are canonical bytes from the address package.
type TransferMessage struct {
	Token  []byte
	From   []byte
	To     []byte
	Amount *big.Int
	Data   []byte
}

type rlpTransfer struct {
	Token  []byte
	From   []byte
	To     []byte
	Amount []byte
	Data   []byte
}

// EncodeTransfer RLP-encodes the message with a 32 byte big-endian amount
func EncodeTransfer(msg TransferMessage) ([]byte, error) {
	if msg.Amount == nil || msg.Amount.Sign() < 0 {
		return nil, fmt.Errorf("transfer amount must not be negative")
	}
	if msg.Amount.BitLen() > 256 {
		return nil, fmt.Errorf("transfer amount overflows uint256")
	}
	amount := make([]byte, 32)
	msg.Amount.FillBytes(amount)

	encoded, err := rlp.EncodeToBytes(rlpTransfer{
		Token:  msg.Token,
		From:   msg.From,
		To:     msg.To,
		Amount: amount,
		Data:   msg.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer message: %w", err)
	}
	return encoded, nil
}

// DecodeTransfer parses a message produced by EncodeTransfer
func DecodeTransfer(raw []byte) (TransferMessage, error) {
	var decoded rlpTransfer
	if err := rlp.DecodeBytes(raw, &decoded); err != nil {
		return TransferMessage{}, fmt.Errorf("failed to decode transfer message: %w", err)
	}
	if len(decoded.Amount) != 32 {
		return TransferMessage{}, fmt.Errorf("transfer amount has %d bytes, want 32", len(decoded.Amount))
	}
	return TransferMessage{
		Token:  decoded.Token,
		From:   decoded.From,
		To:     decoded.To,
		Amount: new(big.Int).SetBytes(decoded.Amount),
		Data:   decoded.Data,
	}, nil
}
