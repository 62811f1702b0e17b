package spoke

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"hub-settle/pkg/address"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

// SolanaRPC is the slice of *rpc.Client the adapter uses
type SolanaRPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error)
}

// TransferArgs are the borsh arguments of the asset manager transfer instruction
type TransferArgs struct {
	Amount    uint64
	Recipient []byte
	Data      []byte
}

// SendMessageArgs are the borsh arguments of the connection send_message instruction
type SendMessageArgs struct {
	DstChainID uint64
	DstAddress []byte
	Payload    []byte
}

// instructionDiscriminator is the anchor method selector
func instructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// EncodeInstruction prefixes the borsh encoded args with the method selector
func EncodeInstruction(name string, args interface{}) ([]byte, error) {
	encoded, err := bin.MarshalBorsh(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s args: %w", name, err)
	}
	return append(instructionDiscriminator(name), encoded...), nil
}

// SolanaAdapter deposits through the asset manager program and sends wallet
// calls through the connection program.
type SolanaAdapter struct {
	chain      registry.ChainConfig
	client     SolanaRPC
	signer     SolanaSigner
	simulator  Simulator
	hubRelayID types.RelayChainID
}

// NewSolanaAdapter creates a Solana adapter
func NewSolanaAdapter(chain registry.ChainConfig, client SolanaRPC, signer SolanaSigner, sim Simulator, hubRelayID types.RelayChainID) *SolanaAdapter {
	return &SolanaAdapter{chain: chain, client: client, signer: signer, simulator: sim, hubRelayID: hubRelayID}
}

func (a *SolanaAdapter) Family() types.ChainFamily { return types.FamilySolana }
func (a *SolanaAdapter) ChainID() types.ChainID    { return a.chain.ID }

func (a *SolanaAdapter) programs() (assetManager, connection solana.PublicKey, err error) {
	assetManager, err = solana.PublicKeyFromBase58(a.chain.AssetManager)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("invalid asset manager program: %w", err)
	}
	connection, err = solana.PublicKeyFromBase58(a.chain.Connection)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("invalid connection program: %w", err)
	}
	return assetManager, connection, nil
}

func (a *SolanaAdapter) isNative(mint solana.PublicKey) bool {
	if mint.Equals(solana.SystemProgramID) {
		return true
	}
	return a.chain.NativeToken != "" && mint.String() == a.chain.NativeToken
}

// VaultAccount returns the account holding custody of mint
func (a *SolanaAdapter) VaultAccount(mint solana.PublicKey) (solana.PublicKey, error) {
	assetManager, _, err := a.programs()
	if err != nil {
		return solana.PublicKey{}, err
	}
	seeds := [][]byte{[]byte("vault"), mint.Bytes()}
	if a.isNative(mint) {
		seeds = [][]byte{[]byte("vault_native")}
	}
	vault, _, err := solana.FindProgramAddress(seeds, assetManager)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive vault account: %w", err)
	}
	return vault, nil
}

// BuildDepositInstruction builds the asset manager transfer instruction
func (a *SolanaAdapter) BuildDepositInstruction(signer, mint solana.PublicKey, req DepositRequest) (solana.Instruction, error) {
	if !req.Amount.IsUint64() {
		return nil, fmt.Errorf("amount %s does not fit a Solana token amount", req.Amount)
	}
	assetManager, connection, err := a.programs()
	if err != nil {
		return nil, err
	}
	amConfig, _, err := solana.FindProgramAddress([][]byte{[]byte("config")}, assetManager)
	if err != nil {
		return nil, fmt.Errorf("failed to derive asset manager config: %w", err)
	}
	connConfig, _, err := solana.FindProgramAddress([][]byte{[]byte("config")}, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to derive connection config: %w", err)
	}
	vault, err := a.VaultAccount(mint)
	if err != nil {
		return nil, err
	}

	data, err := EncodeInstruction("transfer", TransferArgs{
		Amount:    req.Amount.Uint64(),
		Recipient: req.To.Bytes(),
		Data:      req.Data,
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(signer).WRITE().SIGNER(),
		solana.Meta(amConfig),
		solana.Meta(vault).WRITE(),
	}
	if !a.isNative(mint) {
		userATA, _, err := solana.FindAssociatedTokenAddress(signer, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive token account: %w", err)
		}
		accounts = append(accounts,
			solana.Meta(userATA).WRITE(),
			solana.Meta(mint),
			solana.Meta(solana.TokenProgramID),
		)
	}
	accounts = append(accounts,
		solana.Meta(solana.SystemProgramID),
		solana.Meta(connection),
		solana.Meta(connConfig).WRITE(),
	)

	return solana.NewInstruction(assetManager, accounts, data), nil
}

func (a *SolanaAdapter) send(ctx context.Context, instruction solana.Instruction, dryRun bool) (*types.TxHandle, error) {
	recent, err := a.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}
	payer := a.signer.PublicKey()
	tx, err := solana.NewTransaction([]solana.Instruction{instruction}, recent.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	if err := a.signer.Sign(tx); err != nil {
		return nil, err
	}

	handle := &types.TxHandle{ChainID: a.chain.ID, Raw: tx}
	if dryRun {
		return handle, nil
	}
	sig, err := a.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	handle.Hash = sig.String()

	log.Info().Str("chain", string(a.chain.ID)).Str("signature", handle.Hash).Msg("Transaction sent")
	return handle, nil
}

// Deposit sends native SOL or an SPL token to the asset manager vault
func (a *SolanaAdapter) Deposit(ctx context.Context, req DepositRequest) (*types.TxHandle, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if a.signer == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoProvider, a.chain.ID)
	}
	if err := checkSender(a.chain, req.From, a.signer.PublicKey().String()); err != nil {
		return nil, err
	}
	mint, err := solana.PublicKeyFromBase58(req.Token)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint: %w", err)
	}
	instruction, err := a.BuildDepositInstruction(a.signer.PublicKey(), mint, req)
	if err != nil {
		return nil, err
	}
	return a.send(ctx, instruction, req.DryRun)
}

// CallWallet simulates the payload on the hub and sends it through the
// connection program.
func (a *SolanaAdapter) CallWallet(ctx context.Context, req CallWalletRequest) (*types.TxHandle, error) {
	if a.signer == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoProvider, a.chain.ID)
	}
	if err := checkSender(a.chain, req.From, a.signer.PublicKey().String()); err != nil {
		return nil, err
	}
	from, err := address.EncodeForChain(a.chain, req.From)
	if err != nil {
		return nil, err
	}
	if err := simulateFirst(ctx, a.simulator, a.chain, from, req.Payload); err != nil {
		return nil, err
	}

	_, connection, err := a.programs()
	if err != nil {
		return nil, err
	}
	connConfig, _, err := solana.FindProgramAddress([][]byte{[]byte("config")}, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to derive connection config: %w", err)
	}
	data, err := EncodeInstruction("send_message", SendMessageArgs{
		DstChainID: uint64(a.hubRelayID),
		DstAddress: req.HubWallet.Bytes(),
		Payload:    req.Payload,
	})
	if err != nil {
		return nil, err
	}
	instruction := solana.NewInstruction(connection, solana.AccountMetaSlice{
		solana.Meta(a.signer.PublicKey()).WRITE().SIGNER(),
		solana.Meta(connConfig).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}, data)
	return a.send(ctx, instruction, req.DryRun)
}

// EstimateFee asks the cluster the fee of a prepared transaction message
func (a *SolanaAdapter) EstimateFee(ctx context.Context, handle *types.TxHandle) (*types.Fee, error) {
	tx, ok := handle.Raw.(*solana.Transaction)
	if !ok {
		return nil, fmt.Errorf("transaction handle carries no prepared Solana transaction")
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	result, err := a.client.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(msg), rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee for message: %w", err)
	}
	if result.Value == nil {
		return nil, fmt.Errorf("blockhash of the prepared transaction expired")
	}
	return &types.Fee{
		Amount: new(big.Int).SetUint64(*result.Value),
		Unit:   "lamports",
		Detail: map[string]string{"signatures": strconv.Itoa(len(tx.Signatures))},
	}, nil
}

// GetDeposit reads the vault balance of token
func (a *SolanaAdapter) GetDeposit(ctx context.Context, token string) (*big.Int, error) {
	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint: %w", err)
	}
	vault, err := a.VaultAccount(mint)
	if err != nil {
		return nil, err
	}

	if a.isNative(mint) {
		balance, err := a.client.GetBalance(ctx, vault, rpc.CommitmentFinalized)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return new(big.Int).SetUint64(balance.Value), nil
	}

	balance, err := a.client.GetTokenAccountBalance(ctx, vault, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}
	amount, ok := new(big.Int).SetString(balance.Value.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse token balance %q", balance.Value.Amount)
	}
	return amount, nil
}

// VerifyTx reports whether the signature reached finalized commitment
func (a *SolanaAdapter) VerifyTx(ctx context.Context, hash string) (bool, error) {
	sig, err := solana.SignatureFromBase58(hash)
	if err != nil {
		return false, fmt.Errorf("invalid transaction signature: %w", err)
	}
	result, err := a.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return false, fmt.Errorf("failed to get signature status: %w", err)
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return false, nil
	}
	status := result.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("transaction %s failed: %v", hash, status.Err)
	}
	return status.ConfirmationStatus == rpc.ConfirmationStatusFinalized, nil
}

// IsAllowanceValid is always true: the signer authorizes the transfer itself
func (a *SolanaAdapter) IsAllowanceValid(ctx context.Context, req AllowanceRequest) (bool, error) {
	return true, nil
}

func (a *SolanaAdapter) Approve(ctx context.Context, req AllowanceRequest) (*types.TxHandle, error) {
	return nil, fmt.Errorf("%w: approve on %s", types.ErrUnsupported, a.chain.ID)
}
