// Package opportunity queries the external contracts service for
// candidate investment targets.
package opportunity

import (
	"context"
	"encoding/json"

	"PensionSentinel/internal/model"
)

// Candidate is an investment contract offered by the contracts service.
type Candidate struct {
	Address string
	// Details is the raw JSON object when the service returned one,
	// forwarded verbatim to the analyzer.
	Details json.RawMessage
}

// Source returns candidates filtered by risk tier and settlement asset.
// Implementations never fail the caller: unavailability is an empty list.
type Source interface {
	Candidates(ctx context.Context, risk model.RiskLevel, asset string) []Candidate
	Name() string
}

// StaticSource serves a fixed candidate list, for development runs.
type StaticSource struct {
	List []Candidate
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Candidates(context.Context, model.RiskLevel, string) []Candidate {
	return s.List
}
