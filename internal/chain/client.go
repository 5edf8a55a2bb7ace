// Package chain talks to the fund contracts over an EVM JSON-RPC endpoint.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt is the confirmation of a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Client is the subset of chain access the allocation pipeline needs.
// Amounts are fixed-point integers at the token's precision.
type Client interface {
	// BalanceOf reads the ERC-20 balance of holder on token.
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
	// Paused reads paused() on a fund contract.
	Paused(ctx context.Context, contract common.Address) (bool, error)
	// Owner reads owner() on a fund contract.
	Owner(ctx context.Context, contract common.Address) (common.Address, error)
	// Token reads the settlement token a contract is configured with.
	Token(ctx context.Context, contract common.Address) (common.Address, error)
	// PositionOf reads the position target holds for holder.
	PositionOf(ctx context.Context, target, holder common.Address) (*big.Int, error)
	// CodeAt returns the deployed bytecode at addr.
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)

	// Signer returns the transaction signing identity, if one is configured.
	Signer() (common.Address, bool)
	// SimulateInvest dry-runs invest(target, amount) on the fund contract.
	// A revert is returned as *RevertError.
	SimulateInvest(ctx context.Context, fund, target common.Address, amount *big.Int) error
	// SendInvest signs and broadcasts invest(target, amount).
	SendInvest(ctx context.Context, fund, target common.Address, amount *big.Int) (common.Hash, error)
	// WaitConfirmed blocks until the transaction is mined or ctx expires.
	WaitConfirmed(ctx context.Context, hash common.Hash) (*Receipt, error)
}
