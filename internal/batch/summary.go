package batch

import "time"

// OutcomeKind classifies how a fund was handled in a run.
type OutcomeKind string

const (
	OutcomeCreated  OutcomeKind = "created"
	OutcomeNoAction OutcomeKind = "no_action"
	OutcomeSkipped  OutcomeKind = "skipped"
	OutcomeFailed   OutcomeKind = "failed"
)

// Outcome is the result for a single fund.
type Outcome struct {
	FundID    string      `json:"fundId"`
	FundName  string      `json:"fundName,omitempty"`
	Kind      OutcomeKind `json:"outcome"`
	Excess    string      `json:"excess,omitempty"`
	Proposals int         `json:"proposalsCreated,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Err       error       `json:"-"`
}

// Summary aggregates a run. Processed counts every fund that did not fail.
type Summary struct {
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	Total            int       `json:"total"`
	Processed        int       `json:"processed"`
	ProposalsCreated int       `json:"proposalsCreated"`
	Outcomes         []Outcome `json:"outcomes"`
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	if o.Kind != OutcomeFailed {
		s.Processed++
	}
	s.ProposalsCreated += o.Proposals
}

// Count returns how many funds ended with the given kind.
func (s *Summary) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
