package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"PensionSentinel/internal/model"
)

// SQLiteStore persists to a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, log logrus.FieldLogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers; status transitions rely on it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("path", dbPath).Info("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		// Owned by the fund administration layer; created here for local runs.
		`CREATE TABLE IF NOT EXISTS pension_funds (
			id                  TEXT PRIMARY KEY,
			name                TEXT NOT NULL DEFAULT '',
			contract_address    TEXT NOT NULL DEFAULT '',
			reserve_amount      TEXT,
			risk_appetite       TEXT,
			stablecoin          TEXT,
			investment_duration TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS investment_proposals (
			id                  TEXT PRIMARY KEY,
			fund_id             TEXT NOT NULL,
			ai_score            TEXT NOT NULL,
			expected_roi        TEXT NOT NULL,
			risk_level          TEXT NOT NULL,
			investment_amount   TEXT,
			investment_contract TEXT,
			analysis            TEXT NOT NULL DEFAULT '',
			source              TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL,
			created_at          INTEGER NOT NULL,
			approved_at         INTEGER,
			rejected_at         INTEGER,
			approved_by         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proposals_fund ON investment_proposals(fund_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_proposals_status ON investment_proposals(status)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id         TEXT PRIMARY KEY,
			fund_id    TEXT NOT NULL,
			tx_hash    TEXT NOT NULL UNIQUE,
			type       TEXT NOT NULL,
			amount     TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_fund ON transactions(fund_id, created_at)`,
	}

	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return fmt.Errorf("exec %q: %w", st[:40], err)
		}
	}
	return nil
}

// --- funds ---

const fundColumns = `id, name, contract_address, COALESCE(reserve_amount, ''), COALESCE(risk_appetite, ''),
	COALESCE(stablecoin, ''), COALESCE(investment_duration, '')`

func (s *SQLiteStore) ListFunds(ctx context.Context) ([]model.Fund, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fundColumns+` FROM pension_funds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	defer rows.Close()

	var out []model.Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetFund(ctx context.Context, id string) (*model.Fund, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fundColumns+` FROM pension_funds WHERE id = ?`, id)
	f, err := scanFund(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fund %s: %w", id, ErrNotFound)
	}
	return f, err
}

// SaveFund inserts or replaces a fund record. The administration layer
// normally owns these rows; this is used to seed local databases.
func (s *SQLiteStore) SaveFund(ctx context.Context, f model.Fund) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pension_funds
		(id, name, contract_address, reserve_amount, risk_appetite, stablecoin, investment_duration)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			contract_address = excluded.contract_address,
			reserve_amount = excluded.reserve_amount,
			risk_appetite = excluded.risk_appetite,
			stablecoin = excluded.stablecoin,
			investment_duration = excluded.investment_duration`,
		f.ID, f.Name, f.ContractAddress, nullString(f.ReserveAmount), nullString(string(f.RiskAppetite)),
		nullString(f.Stablecoin), nullString(f.InvestmentDuration))
	if err != nil {
		return fmt.Errorf("save fund %s: %w", f.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFund(sc scanner) (*model.Fund, error) {
	var f model.Fund
	var risk string
	if err := sc.Scan(&f.ID, &f.Name, &f.ContractAddress, &f.ReserveAmount, &risk, &f.Stablecoin, &f.InvestmentDuration); err != nil {
		return nil, err
	}
	f.RiskAppetite = model.RiskLevel(strings.ToUpper(risk))
	return &f, nil
}

// --- proposals ---

// CreateProposals inserts all proposals of one fund in a single transaction.
func (s *SQLiteStore) CreateProposals(ctx context.Context, proposals []*model.Proposal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, p := range proposals {
		var amount sql.NullString
		if p.Amount.Valid {
			amount = sql.NullString{String: p.Amount.Decimal.String(), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO investment_proposals
			(id, fund_id, ai_score, expected_roi, risk_level, investment_amount, investment_contract,
			 analysis, source, status, created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			p.ID, p.FundID, p.Score.String(), p.ExpectedReturn.String(), string(p.RiskLevel),
			amount, nullString(p.TargetContract), p.Rationale, p.Source, string(p.Status),
			p.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert proposal %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

const proposalColumns = `id, fund_id, ai_score, expected_roi, risk_level, investment_amount, investment_contract,
	analysis, source, status, created_at, approved_at, rejected_at, approved_by`

func (s *SQLiteStore) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM investment_proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("proposal %s: %w", id, ErrNotFound)
	}
	return p, err
}

func (s *SQLiteStore) ListProposals(ctx context.Context, f ProposalFilter) ([]model.Proposal, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.FundID != "" {
		where = append(where, "fund_id = ?")
		args = append(args, f.FundID)
	}
	if f.RiskLevel != "" {
		where = append(where, "risk_level = ?")
		args = append(args, string(f.RiskLevel))
	}
	q := `SELECT ` + proposalColumns + ` FROM investment_proposals`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var out []model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Reject moves a Pending proposal to Rejected.
func (s *SQLiteStore) Reject(ctx context.Context, id, approver string, at time.Time) (*model.Proposal, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE investment_proposals
		SET status = ?, rejected_at = ?, approved_by = ?
		WHERE id = ? AND status = ?`,
		string(model.StatusRejected), at.UnixMilli(), approver, id, string(model.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("reject proposal %s: %w", id, err)
	}
	if err := s.checkTransition(ctx, s.db, res, id, model.StatusRejected); err != nil {
		return nil, err
	}
	return s.GetProposal(ctx, id)
}

// CompleteApproval records the confirmed transfer and moves the proposal
// to Approved. The ledger entry is kept even if the proposal left Pending
// meanwhile, since the transfer happened on-chain; ErrNotPending is then
// returned.
func (s *SQLiteStore) CompleteApproval(ctx context.Context, id, approver string, at time.Time, ltx *model.LedgerTransaction) (*model.Proposal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO transactions
		(id, fund_id, tx_hash, type, amount, status, created_at) VALUES (?,?,?,?,?,?,?)`,
		ltx.ID, ltx.FundID, ltx.TxHash, ltx.Type, ltx.Amount, ltx.Status, ltx.CreatedAt.UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("insert ledger transaction %s: %w", ltx.TxHash, err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE investment_proposals
		SET status = ?, approved_at = ?, approved_by = ?
		WHERE id = ? AND status = ?`,
		string(model.StatusApproved), at.UnixMilli(), approver, id, string(model.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("approve proposal %s: %w", id, err)
	}
	transitionErr := s.checkTransition(ctx, tx, res, id, model.StatusApproved)
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approval %s: %w", id, err)
	}
	if transitionErr != nil {
		return nil, transitionErr
	}
	return s.GetProposal(ctx, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkTransition maps a zero-row status update to ErrNotFound, or to
// ErrNotPending when the stored status cannot move to the target.
func (s *SQLiteStore) checkTransition(ctx context.Context, q queryer, res sql.Result, id string, to model.ProposalStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var status string
	err = q.QueryRowContext(ctx, `SELECT status FROM investment_proposals WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("proposal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if model.ProposalStatus(status).CanTransitionTo(to) {
		return fmt.Errorf("proposal %s: status update to %s matched no row", id, to)
	}
	return fmt.Errorf("proposal %s is %s: %w", id, status, ErrNotPending)
}

func scanProposal(sc scanner) (*model.Proposal, error) {
	var (
		p                        model.Proposal
		score, roi, risk, status string
		amount, target, approver sql.NullString
		created                  int64
		approvedAt, rejectedAt   sql.NullInt64
	)
	if err := sc.Scan(&p.ID, &p.FundID, &score, &roi, &risk, &amount, &target,
		&p.Rationale, &p.Source, &status, &created, &approvedAt, &rejectedAt, &approver); err != nil {
		return nil, err
	}
	var err error
	if p.Score, err = decimal.NewFromString(score); err != nil {
		return nil, fmt.Errorf("proposal %s score: %w", p.ID, err)
	}
	if p.ExpectedReturn, err = decimal.NewFromString(roi); err != nil {
		return nil, fmt.Errorf("proposal %s roi: %w", p.ID, err)
	}
	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("proposal %s amount: %w", p.ID, err)
		}
		p.Amount = decimal.NewNullDecimal(d)
	}
	p.RiskLevel = model.RiskLevel(risk)
	p.Status = model.ProposalStatus(status)
	p.TargetContract = target.String
	p.Approver = approver.String
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.ApprovedAt = optionalTime(approvedAt)
	p.RejectedAt = optionalTime(rejectedAt)
	return &p, nil
}

// --- ledger ---

func (s *SQLiteStore) ListTransactions(ctx context.Context, fundID string, limit, offset int) ([]model.LedgerTransaction, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE fund_id = ?`, fundID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, fund_id, tx_hash, type, amount, status, created_at
		FROM transactions WHERE fund_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, fundID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) GetTransactionByHash(ctx context.Context, hash string) (*model.LedgerTransaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, fund_id, tx_hash, type, amount, status, created_at
		FROM transactions WHERE tx_hash = ?`, hash)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", hash, ErrNotFound)
	}
	return t, err
}

func scanTransaction(sc scanner) (*model.LedgerTransaction, error) {
	var t model.LedgerTransaction
	var created int64
	if err := sc.Scan(&t.ID, &t.FundID, &t.TxHash, &t.Type, &t.Amount, &t.Status, &created); err != nil {
		return nil, err
	}
	t.CreatedAt = time.UnixMilli(created).UTC()
	return &t, nil
}

func (s *SQLiteStore) Close() error {
	s.log.Info("closing sqlite store")
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func optionalTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
