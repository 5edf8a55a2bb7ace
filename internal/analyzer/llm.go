package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"PensionSentinel/internal/model"
)

// Completer sends a single prompt to a language model and returns its text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var promptTmpl = template.Must(template.New("prompt").Parse(`You are an expert investment analyst for a pension fund management system.

Given the following information:
- Risk Appetite: {{.Risk}}
- Stablecoin: {{.Asset}}
- Investment Duration: {{.Duration}}
- Available Excess Funds: {{.Excess}} {{.Asset}}
- Available Investment Contracts: {{.Candidates}}

Analyze each contract and generate investment proposals. For each contract, provide:
1. Score (0-100): confidence score for this investment
2. Expected return (%): projected return on investment percentage
3. Risk level: LOW, MEDIUM, or HIGH
4. Allocation amount: how much to allocate (total allocations must not exceed the available excess funds)

IMPORTANT: Respond ONLY with a valid JSON array. Each object must have exactly these fields:
- score: string (number 0-100)
- expectedReturnPercent: string (decimal percentage)
- riskLevel: string (exactly "LOW", "MEDIUM", or "HIGH")
- allocationAmount: string (amount in {{.Asset}} units, total must not exceed {{.Excess}})
- targetContract: string (one of the available contracts)
- rationale: string (brief explanation)

Example format:
[
  {"score": "85", "expectedReturnPercent": "12.5", "riskLevel": "MEDIUM", "allocationAmount": "5000.00", "targetContract": "0x...", "rationale": "Strong fundamentals with moderate risk"}
]

Respond with the JSON array only, no other text.`))

// LLM scores candidates through a language model and validates its
// answer strictly. Any deviation is returned as ErrInvalidResponse.
type LLM struct {
	Completer Completer
	Timeout   time.Duration
}

func (l *LLM) Name() string { return "llm" }

func (l *LLM) Analyze(ctx context.Context, req Request) ([]Allocation, error) {
	prompt, err := renderPrompt(req)
	if err != nil {
		return nil, err
	}
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	content, err := l.Completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm completion: %w", err)
	}
	return parseAllocations(content, req)
}

func renderPrompt(req Request) (string, error) {
	candidates := make([]json.RawMessage, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		if len(c.Details) > 0 {
			candidates = append(candidates, c.Details)
			continue
		}
		raw, _ := json.Marshal(c.Address)
		candidates = append(candidates, raw)
	}
	list, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode candidates: %w", err)
	}
	var buf bytes.Buffer
	err = promptTmpl.Execute(&buf, map[string]string{
		"Risk":       string(req.Risk),
		"Asset":      req.Asset.Symbol,
		"Duration":   req.Duration,
		"Excess":     req.Excess.StringFixed(req.Asset.Decimals),
		"Candidates": string(list),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

type llmItem struct {
	Score                 *string `json:"score"`
	ExpectedReturnPercent *string `json:"expectedReturnPercent"`
	RiskLevel             *string `json:"riskLevel"`
	AllocationAmount      *string `json:"allocationAmount"`
	TargetContract        *string `json:"targetContract"`
	Rationale             *string `json:"rationale"`
}

var hundred = decimal.NewFromInt(100)

func parseAllocations(content string, req Request) ([]Allocation, error) {
	raw, ok := extractJSONArray(content)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON array in response", ErrInvalidResponse)
	}
	var items []llmItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrInvalidResponse)
	}

	allowed := make(map[common.Address]bool, len(req.Candidates))
	for _, c := range req.Candidates {
		allowed[common.HexToAddress(c.Address)] = true
	}

	out := make([]Allocation, 0, len(items))
	sum := decimal.Zero
	for i, it := range items {
		a, err := it.validate(allowed, req)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidResponse, i, err)
		}
		sum = sum.Add(a.Amount.Decimal)
		out = append(out, a)
	}
	if sum.GreaterThan(req.Excess) {
		return nil, fmt.Errorf("%w: allocations %s exceed excess %s", ErrInvalidResponse, sum, req.Excess)
	}
	return out, nil
}

func (it llmItem) validate(allowed map[common.Address]bool, req Request) (Allocation, error) {
	if it.Score == nil || it.ExpectedReturnPercent == nil || it.RiskLevel == nil ||
		it.AllocationAmount == nil || it.TargetContract == nil || it.Rationale == nil {
		return Allocation{}, fmt.Errorf("missing field")
	}
	score, err := decimal.NewFromString(strings.TrimSpace(*it.Score))
	if err != nil || score.IsNegative() || score.GreaterThan(hundred) {
		return Allocation{}, fmt.Errorf("score %q out of range", *it.Score)
	}
	roi, err := decimal.NewFromString(strings.TrimSpace(*it.ExpectedReturnPercent))
	if err != nil {
		return Allocation{}, fmt.Errorf("expected return %q: %v", *it.ExpectedReturnPercent, err)
	}
	risk := model.RiskLevel(*it.RiskLevel)
	if risk != model.RiskLow && risk != model.RiskMedium && risk != model.RiskHigh {
		return Allocation{}, fmt.Errorf("risk level %q", *it.RiskLevel)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(*it.AllocationAmount))
	if err != nil || !amount.IsPositive() {
		return Allocation{}, fmt.Errorf("allocation amount %q", *it.AllocationAmount)
	}
	if _, err := req.Asset.ToBaseUnits(amount); err != nil {
		return Allocation{}, err
	}
	if !common.IsHexAddress(*it.TargetContract) || !allowed[common.HexToAddress(*it.TargetContract)] {
		return Allocation{}, fmt.Errorf("target %q is not a candidate", *it.TargetContract)
	}
	return Allocation{
		Score:          score,
		ExpectedReturn: roi,
		RiskLevel:      risk,
		Amount:         decimal.NewNullDecimal(amount),
		TargetContract: common.HexToAddress(*it.TargetContract).Hex(),
		Rationale:      *it.Rationale,
	}, nil
}

// extractJSONArray returns the text between the first '[' and the last ']',
// tolerating prose or code fences around the array.
func extractJSONArray(s string) (string, bool) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
