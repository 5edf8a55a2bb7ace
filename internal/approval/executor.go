// Package approval executes operator decisions on investment proposals.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"PensionSentinel/internal/asset"
	"PensionSentinel/internal/chain"
	"PensionSentinel/internal/metrics"
	"PensionSentinel/internal/model"
	"PensionSentinel/internal/store"
)

const DefaultConfirmTimeout = 5 * time.Minute

var (
	ErrMissingApprover     = errors.New("approver identity is required")
	ErrMissingAllocation   = errors.New("proposal has no allocation amount")
	ErrMissingTarget       = errors.New("proposal has no valid target contract")
	ErrSignerNotConfigured = errors.New("transaction signer is not configured")
	ErrInvalidFundContract = errors.New("fund has no valid contract address")
)

// Store is the persistence the executor needs.
type Store interface {
	GetProposal(ctx context.Context, id string) (*model.Proposal, error)
	GetFund(ctx context.Context, id string) (*model.Fund, error)
	ListProposals(ctx context.Context, f store.ProposalFilter) ([]model.Proposal, error)
	Reject(ctx context.Context, id, approver string, at time.Time) (*model.Proposal, error)
	CompleteApproval(ctx context.Context, id, approver string, at time.Time, ltx *model.LedgerTransaction) (*model.Proposal, error)
}

// AssetLookup resolves a settlement asset symbol.
type AssetLookup interface {
	Lookup(symbol string) (asset.Asset, error)
}

// BroadcastError is returned when a transaction was sent but could not be
// confirmed. The transfer may still land; reconcile by hash before retrying.
type BroadcastError struct {
	TxHash common.Hash
	Err    error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("transaction %s broadcast but not confirmed: %v", e.TxHash.Hex(), e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }

// Result is a completed approval.
type Result struct {
	Proposal    *model.Proposal          `json:"proposal"`
	Transaction *model.LedgerTransaction `json:"transaction"`
	BlockNumber uint64                   `json:"blockNumber"`
}

type Options struct {
	ConfirmTimeout time.Duration
}

// Executor approves and rejects proposals. Approvals run one at a time:
// there is a single signer and a single nonce sequence.
type Executor struct {
	store   Store
	chain   chain.Client
	assets  AssetLookup
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	opts    Options

	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

func NewExecutor(st Store, c chain.Client, assets AssetLookup, m *metrics.Metrics, log logrus.FieldLogger, opts Options) *Executor {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Executor{
		store:   st,
		chain:   c,
		assets:  assets,
		metrics: m,
		log:     log.WithField("component", "approval"),
		opts:    opts,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Approve validates, dry-runs and submits the proposal's transfer, then
// records the ledger entry and marks it Approved once the transaction is
// confirmed. Any failure leaves the proposal Pending.
func (e *Executor) Approve(ctx context.Context, id, approver string) (*Result, error) {
	res, stage, err := e.approve(ctx, id, approver)
	e.metrics.Decision("approve", stage)
	return res, err
}

func (e *Executor) approve(ctx context.Context, id, approver string) (*Result, string, error) {
	if approver == "" {
		return nil, "precondition", ErrMissingApprover
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	log := e.log.WithFields(logrus.Fields{"proposal_id": id, "approver": approver})

	p, err := e.store.GetProposal(ctx, id)
	if err != nil {
		return nil, "precondition", err
	}
	if p.Status != model.StatusPending {
		return nil, "precondition", fmt.Errorf("proposal %s is %s: %w", id, p.Status, store.ErrNotPending)
	}
	fund, err := e.store.GetFund(ctx, p.FundID)
	if err != nil {
		return nil, "precondition", err
	}
	log = log.WithFields(logrus.Fields{"fund_id": fund.ID, "fund": fund.Label()})

	t, a, err := e.resolve(p, fund)
	if err != nil {
		return nil, "precondition", err
	}
	log = log.WithFields(logrus.Fields{"target": t.target.Hex(), "amount": a.Format(t.amount)})

	for _, c := range preflightChecks {
		clog := log.WithField("check", c.name)
		err := c.run(ctx, e.chain, t)
		var rerr *readError
		switch {
		case err == nil:
			clog.Info("pre-flight check passed")
		case errors.As(err, &rerr) && c.advisory:
			clog.WithError(err).Warn("pre-flight check could not be read, continuing")
		default:
			clog.WithError(err).Error("pre-flight check failed")
			return nil, "preflight", fmt.Errorf("pre-flight %s: %w", c.name, err)
		}
	}
	e.flagOverAllocation(ctx, log, p)

	if err := e.chain.SimulateInvest(ctx, t.fund, t.target, t.amount); err != nil {
		log.WithError(err).Error("dry-run failed")
		return nil, "reverted", fmt.Errorf("dry-run: %w", err)
	}
	log.Info("dry-run succeeded, submitting transaction")

	hash, err := e.chain.SendInvest(ctx, t.fund, t.target, t.amount)
	if err != nil && hash != (common.Hash{}) {
		log.WithError(err).WithField("tx_hash", hash.Hex()).Error("submit failed after signing; reconcile by hash before retrying")
		return nil, "submit_failed", &BroadcastError{TxHash: hash, Err: err}
	}
	if err != nil {
		log.WithError(err).Error("submit failed")
		return nil, "submit_failed", fmt.Errorf("submit investment: %w", err)
	}
	log = log.WithField("tx_hash", hash.Hex())
	log.Info("transaction submitted, awaiting confirmation")

	// Only ConfirmTimeout bounds the wait; the mutex stays held until the
	// transaction is settled.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ConfirmTimeout)
	receipt, err := e.chain.WaitConfirmed(waitCtx, hash)
	cancel()
	if err != nil {
		log.WithError(err).Error("transaction not confirmed; reconcile by hash before retrying")
		return nil, "unconfirmed", &BroadcastError{TxHash: hash, Err: err}
	}

	now := e.now().UTC()
	ltx := &model.LedgerTransaction{
		ID:        e.newID(),
		FundID:    fund.ID,
		TxHash:    hash.Hex(),
		Type:      model.TxTypeInvestment,
		Amount:    p.Amount.Decimal.String(),
		Status:    model.TxStatusCompleted,
		CreatedAt: now,
	}
	// The transfer is final on chain; record it even if the caller went away.
	approved, err := e.store.CompleteApproval(context.WithoutCancel(ctx), id, approver, now, ltx)
	if err != nil {
		log.WithError(err).Error("record confirmed transaction failed")
		return nil, "record_failed", fmt.Errorf("record confirmed transaction %s: %w", hash.Hex(), err)
	}
	log.WithField("block", receipt.BlockNumber).Info("proposal approved")
	return &Result{Proposal: approved, Transaction: ltx, BlockNumber: receipt.BlockNumber}, "ok", nil
}

// resolve checks the hard preconditions and converts the proposal into
// chain terms.
func (e *Executor) resolve(p *model.Proposal, fund *model.Fund) (*transfer, asset.Asset, error) {
	if !p.Amount.Valid || !p.Amount.Decimal.IsPositive() {
		return nil, asset.Asset{}, ErrMissingAllocation
	}
	if !common.IsHexAddress(p.TargetContract) {
		return nil, asset.Asset{}, ErrMissingTarget
	}
	signer, ok := e.chain.Signer()
	if !ok {
		return nil, asset.Asset{}, ErrSignerNotConfigured
	}
	if !common.IsHexAddress(fund.ContractAddress) {
		return nil, asset.Asset{}, fmt.Errorf("%w: %q", ErrInvalidFundContract, fund.ContractAddress)
	}
	a, err := e.assets.Lookup(fund.Stablecoin)
	if err != nil {
		return nil, asset.Asset{}, fmt.Errorf("fund %s: %w", fund.ID, err)
	}
	units, err := a.ToBaseUnits(p.Amount.Decimal)
	if err != nil {
		return nil, asset.Asset{}, fmt.Errorf("%w: %v", ErrMissingAllocation, err)
	}
	return &transfer{
		fund:   common.HexToAddress(fund.ContractAddress),
		target: common.HexToAddress(p.TargetContract),
		token:  a.Address,
		signer: signer,
		amount: units,
	}, a, nil
}

// flagOverAllocation warns when the fund has other Pending proposals,
// since approving all of them may exceed the excess they were sized
// against. It does not block the approval.
func (e *Executor) flagOverAllocation(ctx context.Context, log logrus.FieldLogger, p *model.Proposal) {
	pending, err := e.store.ListProposals(ctx, store.ProposalFilter{FundID: p.FundID, Status: model.StatusPending})
	if err != nil {
		log.WithError(err).Warn("could not list pending proposals for fund")
		return
	}
	total := decimal.Zero
	others := 0
	for _, q := range pending {
		if q.Amount.Valid {
			total = total.Add(q.Amount.Decimal)
		}
		if q.ID != p.ID {
			others++
		}
	}
	if others > 0 {
		log.WithFields(logrus.Fields{
			"pending_others": others,
			"pending_total":  total.String(),
		}).Warn("fund has other pending proposals; approving them all may exceed its excess")
	}
}

// Reject marks a Pending proposal Rejected. No chain interaction.
func (e *Executor) Reject(ctx context.Context, id, approver string) (*model.Proposal, error) {
	if approver == "" {
		e.metrics.Decision("reject", "precondition")
		return nil, ErrMissingApprover
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.store.Reject(ctx, id, approver, e.now().UTC())
	if err != nil {
		e.metrics.Decision("reject", "error")
		return nil, err
	}
	e.metrics.Decision("reject", "ok")
	e.log.WithFields(logrus.Fields{"proposal_id": id, "approver": approver}).Info("proposal rejected")
	return p, nil
}
