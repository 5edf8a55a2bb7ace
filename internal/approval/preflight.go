package approval

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"PensionSentinel/internal/chain"
)

var (
	ErrContractPaused      = errors.New("fund contract is paused")
	ErrOwnerMismatch       = errors.New("signer is not the fund contract owner")
	ErrFundAssetMismatch   = errors.New("fund contract settlement asset does not match its stablecoin")
	ErrInsufficientBalance = errors.New("fund balance is below the allocation amount")
	ErrExistingPosition    = errors.New("target already holds a position for this fund")
	ErrTargetAssetMismatch = errors.New("target contract settlement asset does not match the fund's")
	ErrTargetHasNoCode     = errors.New("target address has no deployed code")
)

// transfer is the resolved input of one approval.
type transfer struct {
	fund   common.Address
	target common.Address
	token  common.Address
	signer common.Address
	amount *big.Int
}

// readError marks a failed chain read, as opposed to a failed check.
type readError struct{ err error }

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

type check struct {
	name string
	// advisory checks only warn when the chain read itself fails.
	advisory bool
	run      func(ctx context.Context, c chain.Client, t *transfer) error
}

var preflightChecks = []check{
	{name: "paused", advisory: true, run: checkNotPaused},
	{name: "owner", advisory: true, run: checkOwner},
	{name: "fund_asset", run: checkFundAsset},
	{name: "balance", run: checkBalance},
	// runs before any call on the target; an undeployed target answers
	// every call with an empty result.
	{name: "target_code", run: checkTargetCode},
	{name: "existing_position", advisory: true, run: checkNoPosition},
	{name: "target_asset", run: checkTargetAsset},
}

func checkNotPaused(ctx context.Context, c chain.Client, t *transfer) error {
	paused, err := c.Paused(ctx, t.fund)
	if err != nil {
		return &readError{fmt.Errorf("read paused: %w", err)}
	}
	if paused {
		return ErrContractPaused
	}
	return nil
}

func checkOwner(ctx context.Context, c chain.Client, t *transfer) error {
	owner, err := c.Owner(ctx, t.fund)
	if err != nil {
		return &readError{fmt.Errorf("read owner: %w", err)}
	}
	if owner != t.signer {
		return fmt.Errorf("%w: owner %s, signer %s", ErrOwnerMismatch, owner.Hex(), t.signer.Hex())
	}
	return nil
}

func checkFundAsset(ctx context.Context, c chain.Client, t *transfer) error {
	token, err := c.Token(ctx, t.fund)
	if err != nil {
		return &readError{fmt.Errorf("read fund token: %w", err)}
	}
	if token != t.token {
		return fmt.Errorf("%w: contract uses %s, expected %s", ErrFundAssetMismatch, token.Hex(), t.token.Hex())
	}
	return nil
}

func checkBalance(ctx context.Context, c chain.Client, t *transfer) error {
	bal, err := c.BalanceOf(ctx, t.token, t.fund)
	if err != nil {
		return &readError{fmt.Errorf("read balance: %w", err)}
	}
	if bal.Cmp(t.amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s base units", ErrInsufficientBalance, bal, t.amount)
	}
	return nil
}

func checkNoPosition(ctx context.Context, c chain.Client, t *transfer) error {
	pos, err := c.PositionOf(ctx, t.target, t.fund)
	if err != nil {
		return &readError{fmt.Errorf("read position: %w", err)}
	}
	if pos != nil && pos.Sign() != 0 {
		return fmt.Errorf("%w: %s base units", ErrExistingPosition, pos)
	}
	return nil
}

func checkTargetAsset(ctx context.Context, c chain.Client, t *transfer) error {
	token, err := c.Token(ctx, t.target)
	if err != nil {
		return &readError{fmt.Errorf("read target token: %w", err)}
	}
	if token != t.token {
		return fmt.Errorf("%w: target uses %s, fund uses %s", ErrTargetAssetMismatch, token.Hex(), t.token.Hex())
	}
	return nil
}

func checkTargetCode(ctx context.Context, c chain.Client, t *transfer) error {
	code, err := c.CodeAt(ctx, t.target)
	if err != nil {
		return &readError{fmt.Errorf("read target code: %w", err)}
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: %s", ErrTargetHasNoCode, t.target.Hex())
	}
	return nil
}
