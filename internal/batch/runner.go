// Package batch evaluates every fund for excess balance and records
// allocation proposals for the ones that have some.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"PensionSentinel/internal/analyzer"
	"PensionSentinel/internal/asset"
	"PensionSentinel/internal/metrics"
	"PensionSentinel/internal/model"
	"PensionSentinel/internal/proposal"
)

var (
	// ErrRunInProgress is returned when Execute is called while a run is active.
	ErrRunInProgress = errors.New("batch run already in progress")
	// ErrAllocationExceedsExcess marks generator output larger than the excess.
	ErrAllocationExceedsExcess = errors.New("allocations exceed excess balance")
)

// FundStore is the storage the runner needs.
type FundStore interface {
	ListFunds(ctx context.Context) ([]model.Fund, error)
	CreateProposals(ctx context.Context, proposals []*model.Proposal) error
}

// BalanceReader reads token balances on chain.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// AssetLookup resolves a settlement asset symbol.
type AssetLookup interface {
	Lookup(symbol string) (asset.Asset, error)
}

// Generator produces allocations for one fund's excess.
type Generator interface {
	Generate(ctx context.Context, risk model.RiskLevel, a asset.Asset, duration string, excess decimal.Decimal) (proposal.Result, error)
}

// Runner executes batch runs. At most one run is active at a time.
type Runner struct {
	funds   FundStore
	chain   BalanceReader
	assets  AssetLookup
	gen     Generator
	metrics *metrics.Metrics
	log     logrus.FieldLogger

	now   func() time.Time
	newID func() string

	running sync.Mutex
}

func NewRunner(funds FundStore, chain BalanceReader, assets AssetLookup, gen Generator, m *metrics.Metrics, log logrus.FieldLogger) *Runner {
	return &Runner{
		funds:   funds,
		chain:   chain,
		assets:  assets,
		gen:     gen,
		metrics: m,
		log:     log,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Execute evaluates every fund in turn. Per-fund failures are recorded
// in the summary and never abort the run; failing to list funds does.
func (r *Runner) Execute(ctx context.Context) (*Summary, error) {
	if !r.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.running.Unlock()

	start := r.now()
	r.log.Info("investment batch run started")

	funds, err := r.funds.ListFunds(ctx)
	if err != nil {
		r.metrics.ObserveRun("error", time.Since(start))
		return nil, fmt.Errorf("list funds: %w", err)
	}
	r.log.WithField("funds", len(funds)).Info("evaluating funds")

	sum := &Summary{StartedAt: start, Total: len(funds)}
	for i := range funds {
		if err := ctx.Err(); err != nil {
			sum.FinishedAt = r.now()
			r.metrics.ObserveRun("error", time.Since(start))
			return sum, fmt.Errorf("batch run interrupted after %d/%d funds: %w", i, len(funds), err)
		}
		out := r.processFund(ctx, &funds[i])
		sum.add(out)
		r.metrics.FundOutcome(string(out.Kind))
	}
	sum.FinishedAt = r.now()

	r.metrics.ObserveRun("success", time.Since(start))
	r.metrics.ProposalsCreated(sum.ProposalsCreated)
	r.log.WithFields(logrus.Fields{
		"processed": sum.Processed,
		"total":     sum.Total,
		"proposals": sum.ProposalsCreated,
	}).Info("investment batch run completed")
	return sum, nil
}

func (r *Runner) processFund(ctx context.Context, f *model.Fund) Outcome {
	out := Outcome{FundID: f.ID, FundName: f.Name}
	log := r.log.WithFields(logrus.Fields{"fund_id": f.ID, "fund": f.Label()})

	skip := func(format string, args ...any) Outcome {
		out.Kind = OutcomeSkipped
		out.Reason = fmt.Sprintf(format, args...)
		log.WithField("reason", out.Reason).Info("skipping fund")
		return out
	}
	fail := func(err error) Outcome {
		out.Kind = OutcomeFailed
		out.Err = err
		out.Reason = err.Error()
		log.WithError(err).Error("fund processing failed")
		return out
	}

	if strings.TrimSpace(f.ReserveAmount) == "" || strings.TrimSpace(f.Stablecoin) == "" {
		return skip("missing reserve amount or stablecoin configuration")
	}
	a, err := r.assets.Lookup(f.Stablecoin)
	if err != nil {
		return skip("unknown stablecoin %s", f.Stablecoin)
	}
	reserveUnits, err := a.ParseBaseUnits(f.ReserveAmount)
	if err != nil {
		return skip("invalid reserve amount %q: %v", f.ReserveAmount, err)
	}
	if !common.IsHexAddress(f.ContractAddress) {
		return skip("invalid contract address %q", f.ContractAddress)
	}

	balance, err := r.chain.BalanceOf(ctx, a.Address, common.HexToAddress(f.ContractAddress))
	if err != nil {
		return fail(fmt.Errorf("read %s balance: %w", a.Symbol, err))
	}
	log = log.WithFields(logrus.Fields{
		"balance": a.Format(balance),
		"reserve": a.Format(reserveUnits),
		"asset":   a.Symbol,
	})

	excessUnits := new(big.Int).Sub(balance, reserveUnits)
	if excessUnits.Sign() <= 0 {
		out.Kind = OutcomeNoAction
		out.Reason = "no excess funds"
		log.Info("no excess funds available")
		return out
	}
	excess := a.FromBaseUnits(excessUnits)
	out.Excess = excess.String()
	log = log.WithField("excess", out.Excess)

	res, err := r.gen.Generate(ctx, f.RiskAppetite, a, f.InvestmentDuration, excess)
	if err != nil {
		return fail(fmt.Errorf("generate proposals: %w", err))
	}
	if len(res.Allocations) == 0 {
		out.Kind = OutcomeNoAction
		out.Reason = "no investment opportunities"
		log.Info("no investment opportunities generated")
		return out
	}
	if total := analyzer.Total(res.Allocations); total.GreaterThan(excess) {
		return fail(fmt.Errorf("%w: %s > %s", ErrAllocationExceedsExcess, total, excess))
	}

	created := r.now().UTC()
	proposals := make([]*model.Proposal, 0, len(res.Allocations))
	for _, al := range res.Allocations {
		proposals = append(proposals, &model.Proposal{
			ID:             r.newID(),
			FundID:         f.ID,
			Score:          al.Score,
			ExpectedReturn: al.ExpectedReturn,
			RiskLevel:      al.RiskLevel,
			Amount:         al.Amount,
			TargetContract: al.TargetContract,
			Rationale:      al.Rationale,
			Source:         res.Source,
			Status:         model.StatusPending,
			CreatedAt:      created,
		})
	}
	if err := r.funds.CreateProposals(ctx, proposals); err != nil {
		return fail(fmt.Errorf("persist proposals: %w", err))
	}

	out.Kind = OutcomeCreated
	out.Proposals = len(proposals)
	log.WithFields(logrus.Fields{"count": out.Proposals, "source": res.Source}).Info("created investment proposals")
	return out
}
