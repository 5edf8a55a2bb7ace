package model

import "time"

const (
	TxTypeInvestment  = "Investment"
	TxStatusCompleted = "Completed"
)

// LedgerTransaction is the durable record of a confirmed on-chain transfer.
type LedgerTransaction struct {
	ID        string    `json:"id"`
	FundID    string    `json:"fundId"`
	TxHash    string    `json:"txHash"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
