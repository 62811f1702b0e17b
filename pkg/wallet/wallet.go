// Package wallet derives the hub wallet that owns assets for a spoke account
package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"hub-settle/pkg/address"
	"hub-settle/pkg/hub"
	"hub-settle/pkg/registry"
	"hub-settle/pkg/types"
)

// CodeHashSource resolves the init code hash of hub wallets
type CodeHashSource interface {
	WalletCodeHash(ctx context.Context) (common.Hash, error)
}

// Deriver computes hub wallet addresses. The derivation is CREATE2 over the
// wallet factory, so it is deterministic and needs no network call once the
// code hash is known.
type Deriver struct {
	registry *registry.Registry
	source   CodeHashSource

	mu       sync.Mutex
	codeHash common.Hash
}

// NewDeriver creates a deriver. source may be nil when the registry pins the
// wallet code hash.
func NewDeriver(reg *registry.Registry, source CodeHashSource) *Deriver {
	return &Deriver{
		registry: reg,
		source:   source,
		codeHash: reg.Hub().WalletCodeHash,
	}
}

func (d *Deriver) resolveCodeHash(ctx context.Context) (common.Hash, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.codeHash != (common.Hash{}) {
		return d.codeHash, nil
	}
	if d.source == nil {
		return common.Hash{}, fmt.Errorf("wallet code hash is not configured and no hub source is available")
	}
	hash, err := d.source.WalletCodeHash(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to resolve wallet code hash: %w", err)
	}
	d.codeHash = hash
	return hash, nil
}

// DeriveRaw computes the hub wallet for canonical address bytes on a relay chain
func (d *Deriver) DeriveRaw(ctx context.Context, relayChainID types.RelayChainID, raw []byte) (common.Address, error) {
	codeHash, err := d.resolveCodeHash(ctx)
	if err != nil {
		return common.Address{}, err
	}
	salt, err := hub.WalletSalt(relayChainID, raw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.CreateAddress2(d.registry.Hub().WalletFactory, salt, codeHash.Bytes()), nil
}

// Derive computes the hub wallet of a spoke account given in its native format
func (d *Deriver) Derive(ctx context.Context, chainID types.ChainID, account string) (common.Address, error) {
	chain, err := d.registry.Chain(chainID)
	if err != nil {
		return common.Address{}, err
	}
	raw, err := address.EncodeForChain(chain, account)
	if err != nil {
		return common.Address{}, err
	}
	return d.DeriveRaw(ctx, chain.RelayChainID, raw)
}
