package analyzer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PensionSentinel/internal/asset"
	"PensionSentinel/internal/model"
	"PensionSentinel/internal/opportunity"
)

var usdc = asset.Asset{Symbol: "USDC", Address: common.HexToAddress("0xf08a50178dfcde18524640ea6618a1f965821715"), Decimals: 6}

func candidates(n int) []opportunity.Candidate {
	out := make([]opportunity.Candidate, n)
	for i := range out {
		out[i] = opportunity.Candidate{Address: common.BytesToAddress([]byte{byte(i + 1)}).Hex()}
	}
	return out
}

func TestHeuristic_MediumSplitsExcess(t *testing.T) {
	allocs, err := Heuristic{}.Analyze(context.Background(), Request{
		Risk:       model.RiskMedium,
		Asset:      usdc,
		Excess:     decimal.NewFromInt(20000),
		Candidates: candidates(3),
	})
	require.NoError(t, err)
	require.Len(t, allocs, 3)

	wantScores := []int64{75, 73, 71}
	wantROI := []string{"8.5", "8", "7.5"}
	for i, a := range allocs {
		assert.True(t, a.Score.Equal(decimal.NewFromInt(wantScores[i])), "score %d = %s", i, a.Score)
		assert.True(t, a.ExpectedReturn.Equal(decimal.RequireFromString(wantROI[i])), "roi %d = %s", i, a.ExpectedReturn)
		assert.Equal(t, model.RiskMedium, a.RiskLevel)
		require.True(t, a.Amount.Valid)
		assert.InDelta(t, 6666.67, a.Amount.Decimal.InexactFloat64(), 0.01)
	}
	assert.True(t, Total(allocs).Equal(decimal.NewFromInt(20000)), "sum %s", Total(allocs))
}

func TestHeuristic_TierBaselines(t *testing.T) {
	tests := []struct {
		risk  model.RiskLevel
		score int64
		roi   string
	}{
		{model.RiskLow, 70, "5.0"},
		{model.RiskMedium, 75, "8.5"},
		{model.RiskHigh, 80, "15.0"},
		{model.RiskLevel("UNKNOWN"), 75, "8.5"},
	}
	for _, tt := range tests {
		allocs, err := Heuristic{}.Analyze(context.Background(), Request{Risk: tt.risk, Asset: usdc, Candidates: candidates(1)})
		require.NoError(t, err)
		require.Len(t, allocs, 1)
		assert.True(t, allocs[0].Score.Equal(decimal.NewFromInt(tt.score)), tt.risk)
		assert.True(t, allocs[0].ExpectedReturn.Equal(decimal.RequireFromString(tt.roi)), tt.risk)
		assert.False(t, allocs[0].Amount.Valid, "no excess, no amount")
	}
}

func TestHeuristic_CapsAtThreeAndNonIncreasing(t *testing.T) {
	for n := 0; n <= 5; n++ {
		allocs, err := Heuristic{}.Analyze(context.Background(), Request{
			Risk:       model.RiskLow,
			Asset:      usdc,
			Excess:     decimal.RequireFromString("100.000001"),
			Candidates: candidates(n),
		})
		require.NoError(t, err)
		want := n
		if want > 3 {
			want = 3
		}
		require.Len(t, allocs, want)
		for i := 1; i < len(allocs); i++ {
			assert.True(t, allocs[i-1].Score.Sub(allocs[i].Score).Equal(decimal.NewFromInt(2)))
			assert.False(t, allocs[i].Score.IsNegative())
		}
		if want > 0 {
			assert.True(t, Total(allocs).Equal(decimal.RequireFromString("100.000001")))
		}
	}
}

func TestFloorZero(t *testing.T) {
	assert.True(t, floorZero(decimal.NewFromInt(-3)).IsZero())
	assert.True(t, floorZero(decimal.NewFromInt(3)).Equal(decimal.NewFromInt(3)))
}
