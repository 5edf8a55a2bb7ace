package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PensionSentinel/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sentinel.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertFund(t *testing.T, s *SQLiteStore, f model.Fund) {
	t.Helper()
	require.NoError(t, s.SaveFund(context.Background(), f))
}

func newProposal(fundID string, created time.Time) *model.Proposal {
	return &model.Proposal{
		ID:             uuid.NewString(),
		FundID:         fundID,
		Score:          decimal.NewFromInt(70),
		ExpectedReturn: decimal.RequireFromString("5.0"),
		RiskLevel:      model.RiskLow,
		Amount:         decimal.NewNullDecimal(decimal.RequireFromString("6666.666668")),
		TargetContract: "0x1111111111111111111111111111111111111111",
		Rationale:      "default",
		Source:         "heuristic",
		Status:         model.StatusPending,
		CreatedAt:      created,
	}
}

func TestSQLiteStore_Funds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertFund(t, s, model.Fund{ID: "f2", Name: "Davis", ContractAddress: "0xabc", RiskAppetite: "medium", Stablecoin: "USDC", ReserveAmount: "100000"})
	insertFund(t, s, model.Fund{ID: "f1", Name: "Johnson"})

	funds, err := s.ListFunds(ctx)
	require.NoError(t, err)
	require.Len(t, funds, 2)
	assert.Equal(t, "f1", funds[0].ID)
	assert.Empty(t, funds[0].ReserveAmount, "NULL reserve reads as empty")
	assert.Equal(t, model.RiskMedium, funds[1].RiskAppetite)

	f, err := s.GetFund(ctx, "f2")
	require.NoError(t, err)
	assert.Equal(t, "100000", f.ReserveAmount)

	_, err = s.GetFund(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CreateAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	p1 := newProposal("f1", now.Add(-time.Minute))
	p2 := newProposal("f1", now)
	p2.Amount = decimal.NullDecimal{}
	p2.TargetContract = ""
	p2.RiskLevel = model.RiskHigh
	p3 := newProposal("f2", now)
	require.NoError(t, s.CreateProposals(ctx, []*model.Proposal{p1, p2}))
	require.NoError(t, s.CreateProposals(ctx, []*model.Proposal{p3}))

	got, err := s.GetProposal(ctx, p1.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Valid)
	assert.Equal(t, "6666.666668", got.Amount.Decimal.String())
	assert.True(t, p1.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Nil(t, got.ApprovedAt)

	got, err = s.GetProposal(ctx, p2.ID)
	require.NoError(t, err)
	assert.False(t, got.Amount.Valid)
	assert.Empty(t, got.TargetContract)

	list, err := s.ListProposals(ctx, ProposalFilter{FundID: "f1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, p2.ID, list[0].ID, "newest first")

	list, err = s.ListProposals(ctx, ProposalFilter{Status: model.StatusPending, RiskLevel: model.RiskHigh})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p2.ID, list[0].ID)

	_, err = s.GetProposal(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CreateProposalsIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newProposal("f1", time.Now())
	dup := *p

	err := s.CreateProposals(ctx, []*model.Proposal{p, &dup})
	require.Error(t, err)

	list, err := s.ListProposals(ctx, ProposalFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteStore_RejectIsTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newProposal("f1", time.Now())
	require.NoError(t, s.CreateProposals(ctx, []*model.Proposal{p}))

	got, err := s.Reject(ctx, p.ID, "governor@example.com", time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.NotNil(t, got.RejectedAt)
	assert.Equal(t, "governor@example.com", got.Approver)

	_, err = s.Reject(ctx, p.ID, "someone-else", time.Now())
	assert.ErrorIs(t, err, ErrNotPending)

	ltx := &model.LedgerTransaction{ID: uuid.NewString(), FundID: "f1", TxHash: "0xaaa", Type: model.TxTypeInvestment, Amount: "1", Status: model.TxStatusCompleted, CreatedAt: time.Now()}
	_, err = s.CompleteApproval(ctx, p.ID, "x", time.Now(), ltx)
	assert.ErrorIs(t, err, ErrNotPending)

	got, err = s.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Equal(t, "governor@example.com", got.Approver)

	_, err = s.Reject(ctx, "missing", "x", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CompleteApproval(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := newProposal("f1", time.Now())
	require.NoError(t, s.CreateProposals(ctx, []*model.Proposal{p}))

	ltx := &model.LedgerTransaction{
		ID: uuid.NewString(), FundID: "f1", TxHash: "0xabc123",
		Type: model.TxTypeInvestment, Amount: "6666.666668", Status: model.TxStatusCompleted,
		CreatedAt: time.Now(),
	}
	got, err := s.CompleteApproval(ctx, p.ID, "governor", time.Now(), ltx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.Equal(t, "governor", got.Approver)

	byHash, err := s.GetTransactionByHash(ctx, "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, "6666.666668", byHash.Amount)

	txs, total, err := s.ListTransactions(ctx, "f1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TxTypeInvestment, txs[0].Type)

	_, err = s.GetTransactionByHash(ctx, "0xnone")
	assert.ErrorIs(t, err, ErrNotFound)

	// same hash twice violates the ledger key
	ltx.ID = uuid.NewString()
	_, err = s.CompleteApproval(ctx, p.ID, "governor", time.Now(), ltx)
	require.Error(t, err)
	_, total, err = s.ListTransactions(ctx, "f1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSQLiteStore_SaveFundUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := model.Fund{ID: "f1", Name: "Johnson", ReserveAmount: "100", Stablecoin: "USDC", RiskAppetite: model.RiskLow}
	require.NoError(t, s.SaveFund(ctx, f))

	f.ReserveAmount = "250.5"
	f.RiskAppetite = model.RiskHigh
	require.NoError(t, s.SaveFund(ctx, f))

	funds, err := s.ListFunds(ctx)
	require.NoError(t, err)
	require.Len(t, funds, 1)
	assert.Equal(t, "250.5", funds[0].ReserveAmount)
	assert.Equal(t, model.RiskHigh, funds[0].RiskAppetite)
}
