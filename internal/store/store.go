// Package store persists proposals and ledger transactions and reads the
// fund accounts maintained by the administration layer.
package store

import (
	"errors"

	"PensionSentinel/internal/model"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotPending = errors.New("proposal is not Pending")
)

// ProposalFilter narrows ListProposals. Empty fields match everything.
type ProposalFilter struct {
	Status    model.ProposalStatus
	FundID    string
	RiskLevel model.RiskLevel
}
