package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProposalStatus is the approval state of an investment proposal.
type ProposalStatus string

const (
	StatusPending  ProposalStatus = "Pending"
	StatusApproved ProposalStatus = "Approved"
	StatusRejected ProposalStatus = "Rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ProposalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo reports whether s -> to is a legal transition.
// Only Pending -> Approved and Pending -> Rejected exist.
func (s ProposalStatus) CanTransitionTo(to ProposalStatus) bool {
	return s == StatusPending && to.Terminal()
}

// Proposal is a scored, sized candidate allocation awaiting approval.
type Proposal struct {
	ID             string              `json:"id"`
	FundID         string              `json:"fundId"`
	Score          decimal.Decimal     `json:"aiScore"`
	ExpectedReturn decimal.Decimal     `json:"expectedROI"`
	RiskLevel      RiskLevel           `json:"riskLevel"`
	Amount         decimal.NullDecimal `json:"investmentAmount"`
	TargetContract string              `json:"investmentContract,omitempty"`
	Rationale      string              `json:"analysis,omitempty"`
	Source         string              `json:"source,omitempty"`
	Status         ProposalStatus      `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
	ApprovedAt     *time.Time          `json:"approvedAt,omitempty"`
	RejectedAt     *time.Time          `json:"rejectedAt,omitempty"`
	Approver       string              `json:"approvedBy,omitempty"`
}
