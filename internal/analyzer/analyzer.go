// Package analyzer scores and sizes candidate investment contracts.
package analyzer

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"PensionSentinel/internal/asset"
	"PensionSentinel/internal/model"
	"PensionSentinel/internal/opportunity"
)

// ErrInvalidResponse marks analyzer output that broke the allocation contract.
var ErrInvalidResponse = errors.New("invalid analyzer response")

// Request describes one fund's excess and the candidates to allocate it to.
type Request struct {
	Risk       model.RiskLevel
	Asset      asset.Asset
	Duration   string
	Excess     decimal.Decimal // asset units; zero when unknown
	Candidates []opportunity.Candidate
}

// Allocation is one scored, sized investment suggestion.
type Allocation struct {
	Score          decimal.Decimal
	ExpectedReturn decimal.Decimal
	RiskLevel      model.RiskLevel
	Amount         decimal.NullDecimal
	TargetContract string
	Rationale      string
}

// Analyzer turns candidates into allocations.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) ([]Allocation, error)
	Name() string
}

// Total sums the allocation amounts that are set.
func Total(allocs []Allocation) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range allocs {
		if a.Amount.Valid {
			sum = sum.Add(a.Amount.Decimal)
		}
	}
	return sum
}
