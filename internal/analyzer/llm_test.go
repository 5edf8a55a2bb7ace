package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PensionSentinel/internal/model"
)

type fakeCompleter struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type blockingCompleter struct{}

func (blockingCompleter) Complete(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func llmRequest() Request {
	return Request{
		Risk:       model.RiskMedium,
		Asset:      usdc,
		Duration:   "5 years",
		Excess:     decimal.NewFromInt(20000),
		Candidates: candidates(2),
	}
}

func item(score, roi, risk, amount, target string) string {
	return fmt.Sprintf(`{"score": %q, "expectedReturnPercent": %q, "riskLevel": %q, "allocationAmount": %q, "targetContract": %q, "rationale": "ok"}`,
		score, roi, risk, amount, target)
}

func TestLLM_ValidResponse(t *testing.T) {
	req := llmRequest()
	a0, a1 := req.Candidates[0].Address, req.Candidates[1].Address
	fc := &fakeCompleter{reply: "Here you go:\n```json\n[" +
		item("85", "12.5", "MEDIUM", "12000", strings.ToLower(a0)) + "," +
		item("60", "6", "LOW", "8000", a1) + "]\n```"}

	allocs, err := (&LLM{Completer: fc}).Analyze(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, a0, allocs[0].TargetContract)
	assert.True(t, allocs[0].Score.Equal(decimal.NewFromInt(85)))
	assert.Equal(t, model.RiskLow, allocs[1].RiskLevel)
	assert.Equal(t, "ok", allocs[1].Rationale)

	assert.Contains(t, fc.prompt, "Risk Appetite: MEDIUM")
	assert.Contains(t, fc.prompt, "Available Excess Funds: 20000.000000 USDC")
	assert.Contains(t, fc.prompt, "Investment Duration: 5 years")
	assert.Contains(t, fc.prompt, a0)
}

func TestLLM_RejectsInvalidResponses(t *testing.T) {
	req := llmRequest()
	a0 := req.Candidates[0].Address
	stranger := "0x9999999999999999999999999999999999999999"

	tests := map[string]string{
		"not json":        "I cannot help with that.",
		"broken json":     "[{",
		"empty array":     "[]",
		"numeric score":   `[{"score": 85, "expectedReturnPercent": "1", "riskLevel": "LOW", "allocationAmount": "1", "targetContract": "` + a0 + `", "rationale": ""}]`,
		"missing field":   `[{"score": "85", "expectedReturnPercent": "1", "riskLevel": "LOW", "allocationAmount": "1", "targetContract": "` + a0 + `"}]`,
		"score above 100": "[" + item("101", "1", "LOW", "1", a0) + "]",
		"lowercase risk":  "[" + item("50", "1", "low", "1", a0) + "]",
		"zero amount":     "[" + item("50", "1", "LOW", "0", a0) + "]",
		"too precise":     "[" + item("50", "1", "LOW", "1.0000001", a0) + "]",
		"unknown target":  "[" + item("50", "1", "LOW", "1", stranger) + "]",
		"exceeds excess":  "[" + item("50", "1", "LOW", "15000", a0) + "," + item("50", "1", "LOW", "5000.01", a0) + "]",
		"bad roi":         "[" + item("50", "n/a", "LOW", "1", a0) + "]",
		"invalid target":  "[" + item("50", "1", "LOW", "1", "0xnope") + "]",
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := (&LLM{Completer: &fakeCompleter{reply: reply}}).Analyze(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestLLM_CompleterErrorsAndTimeout(t *testing.T) {
	_, err := (&LLM{Completer: &fakeCompleter{err: errors.New("rate limited")}}).Analyze(context.Background(), llmRequest())
	assert.ErrorContains(t, err, "rate limited")

	start := time.Now()
	_, err = (&LLM{Completer: blockingCompleter{}, Timeout: 20 * time.Millisecond}).Analyze(context.Background(), llmRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOpenAICompleter_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4",
			"choices":[{"index":0,"message":{"role":"assistant","content":"[]"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter("sk-test", srv.URL+"/v1", "", 0.7)
	out, err := c.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}
