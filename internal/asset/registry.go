// Package asset resolves settlement asset symbols to token contracts and
// converts human decimal amounts to on-chain fixed-point units.
package asset

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrUnknownAsset is returned for symbols missing from the registry.
var ErrUnknownAsset = errors.New("unknown asset")

// Asset is an ERC-20 settlement token.
type Asset struct {
	Symbol   string
	Address  common.Address
	Decimals int32
}

// Defaults are the Sepolia stablecoins the funds settle in.
var Defaults = []Asset{
	{Symbol: "PYUSD", Address: common.HexToAddress("0xCaC524BcA292aaade2DF8A05cC58F0a65B1B3bB9"), Decimals: 6},
	{Symbol: "USDC", Address: common.HexToAddress("0xf08a50178dfcde18524640ea6618a1f965821715"), Decimals: 6},
	{Symbol: "USDT", Address: common.HexToAddress("0xaa8e23fb1079ea71e0a56f48a2aa51851d8433d0"), Decimals: 6},
}

// Registry maps upper-cased symbols to assets.
type Registry struct {
	assets map[string]Asset
}

// NewRegistry builds a registry from the defaults, then applies overrides.
// An override with the same symbol replaces the default.
func NewRegistry(overrides ...Asset) (*Registry, error) {
	r := &Registry{assets: make(map[string]Asset)}
	for _, a := range Defaults {
		r.assets[a.Symbol] = a
	}
	for _, a := range overrides {
		sym := strings.ToUpper(strings.TrimSpace(a.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("asset override: empty symbol")
		}
		if a.Address == (common.Address{}) {
			return nil, fmt.Errorf("asset %s: zero address", sym)
		}
		if a.Decimals < 0 || a.Decimals > 36 {
			return nil, fmt.Errorf("asset %s: decimals %d out of range", sym, a.Decimals)
		}
		a.Symbol = sym
		r.assets[sym] = a
	}
	return r, nil
}

// Lookup resolves a symbol case-insensitively.
func (r *Registry) Lookup(symbol string) (Asset, error) {
	a, ok := r.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q", ErrUnknownAsset, symbol)
	}
	return a, nil
}

// Symbols lists the registered symbols in sorted order.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.assets))
	for s := range r.assets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ToBaseUnits converts a human amount to the token's fixed-point integer.
// Negative amounts and amounts with more precision than the token are rejected.
func (a Asset) ToBaseUnits(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	shifted := amount.Shift(a.Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s exceeds %d decimals of %s", amount, a.Decimals, a.Symbol)
	}
	return shifted.BigInt(), nil
}

// ParseBaseUnits parses a decimal string and converts it to base units.
func (a Asset) ParseBaseUnits(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return a.ToBaseUnits(d)
}

// FromBaseUnits converts a fixed-point integer back to a human amount.
func (a Asset) FromBaseUnits(units *big.Int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -a.Decimals)
}

// Format renders base units with the token's full precision.
func (a Asset) Format(units *big.Int) string {
	return a.FromBaseUnits(units).StringFixed(a.Decimals)
}
