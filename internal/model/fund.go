package model

import (
	"fmt"
	"strings"
)

// RiskLevel is the risk tier of a fund preference or a proposal.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ParseRiskLevel accepts the three tiers case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch r := RiskLevel(strings.ToUpper(strings.TrimSpace(s))); r {
	case RiskLow, RiskMedium, RiskHigh:
		return r, nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}

// Fund is a managed pension fund account. It is owned by the fund
// administration layer; the allocation pipeline only reads it.
type Fund struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	ContractAddress    string    `json:"contractAddress"`
	ReserveAmount      string    `json:"reserveAmount"` // decimal string in asset units
	RiskAppetite       RiskLevel `json:"riskAppetite"`
	Stablecoin         string    `json:"stablecoin"`
	InvestmentDuration string    `json:"investmentDuration"`
}

// Label returns a log-friendly name for the fund.
func (f *Fund) Label() string {
	if f.Name == "" {
		return f.ID
	}
	return fmt.Sprintf("%s (%s)", f.Name, f.ID)
}
