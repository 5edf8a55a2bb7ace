package analyzer

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"PensionSentinel/internal/model"
)

const (
	maxHeuristicProposals = 3
	heuristicRationale    = "Default proposal generated without LLM analysis"
)

type baseline struct {
	score int64
	roi   decimal.Decimal
}

var baselines = map[model.RiskLevel]baseline{
	model.RiskLow:    {score: 70, roi: decimal.RequireFromString("5.0")},
	model.RiskMedium: {score: 75, roi: decimal.RequireFromString("8.5")},
	model.RiskHigh:   {score: 80, roi: decimal.RequireFromString("15.0")},
}

var (
	scoreStep = decimal.NewFromInt(2)
	roiStep   = decimal.RequireFromString("0.5")
)

// Heuristic is the deterministic fallback analyzer. It never fails.
type Heuristic struct{}

func (Heuristic) Name() string { return "heuristic" }

// Analyze takes up to three candidates in order, assigns tier-keyed
// scores and returns decreasing by step, and splits the excess evenly.
// The base-unit remainder of the split goes to the first allocation so
// the amounts sum exactly to the excess.
func (Heuristic) Analyze(_ context.Context, req Request) ([]Allocation, error) {
	n := len(req.Candidates)
	if n > maxHeuristicProposals {
		n = maxHeuristicProposals
	}
	if n == 0 {
		return nil, nil
	}
	risk := req.Risk
	base, ok := baselines[risk]
	if !ok {
		risk = model.RiskMedium
		base = baselines[risk]
	}

	amounts := splitEvenly(req, n)
	out := make([]Allocation, n)
	for i := 0; i < n; i++ {
		step := decimal.NewFromInt(int64(i))
		out[i] = Allocation{
			Score:          floorZero(decimal.NewFromInt(base.score).Sub(scoreStep.Mul(step))),
			ExpectedReturn: floorZero(base.roi.Sub(roiStep.Mul(step))).Round(1),
			RiskLevel:      risk,
			Amount:         amounts[i],
			TargetContract: req.Candidates[i].Address,
			Rationale:      heuristicRationale,
		}
	}
	return out, nil
}

func splitEvenly(req Request, n int) []decimal.NullDecimal {
	out := make([]decimal.NullDecimal, n)
	if !req.Excess.IsPositive() {
		return out
	}
	units, err := req.Asset.ToBaseUnits(req.Excess)
	if err != nil {
		// more precision than the token: split at the token's precision
		units = req.Excess.Shift(req.Asset.Decimals).BigInt()
	}
	share, rem := new(big.Int).QuoRem(units, big.NewInt(int64(n)), new(big.Int))
	for i := range out {
		u := new(big.Int).Set(share)
		if i == 0 {
			u.Add(u, rem)
		}
		out[i] = decimal.NewNullDecimal(req.Asset.FromBaseUnits(u))
	}
	return out
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
