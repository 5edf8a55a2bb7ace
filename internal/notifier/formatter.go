package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"PensionSentinel/internal/batch"
	"PensionSentinel/internal/model"
)

const maxListedProposals = 20

// FormatBatchSummary renders the result of a batch run.
func FormatBatchSummary(sum *batch.Summary, err error) string {
	var b strings.Builder
	if err != nil && sum == nil {
		b.WriteString("❌ <b>Investment batch failed</b>\n\n")
		b.WriteString(html.EscapeString(err.Error()))
		return b.String()
	}

	if err != nil {
		b.WriteString("⚠️ <b>Investment batch interrupted</b>")
	} else {
		b.WriteString("📊 <b>Investment batch completed</b>")
	}
	b.WriteString(fmt.Sprintf(" | %s\n\n", sum.StartedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Processed: %d/%d funds\n", sum.Processed, sum.Total))
	b.WriteString(fmt.Sprintf("Proposals created: %d\n", sum.ProposalsCreated))
	b.WriteString(fmt.Sprintf("Duration: %s\n", sum.Duration().Round(time.Millisecond)))

	var issues []batch.Outcome
	for _, o := range sum.Outcomes {
		if o.Kind == batch.OutcomeSkipped || o.Kind == batch.OutcomeFailed {
			issues = append(issues, o)
		}
	}
	if len(issues) > 0 {
		b.WriteString("\n<b>Attention:</b>\n")
		for _, o := range issues {
			b.WriteString(fmt.Sprintf("  • %s %s: %s\n", o.Kind, html.EscapeString(o.FundID), html.EscapeString(o.Reason)))
		}
	}
	if err != nil {
		b.WriteString("\n" + html.EscapeString(err.Error()))
	}
	return b.String()
}

// FormatProposal renders a single proposal.
func FormatProposal(p *model.Proposal) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>%s</b> [%s]\n", html.EscapeString(p.ID), p.Status))
	b.WriteString(fmt.Sprintf("Fund: %s\n", html.EscapeString(p.FundID)))
	b.WriteString(fmt.Sprintf("Score: %s | ROI: %s%% | Risk: %s\n", p.Score, p.ExpectedReturn, p.RiskLevel))
	if p.Amount.Valid {
		b.WriteString(fmt.Sprintf("Amount: %s\n", p.Amount.Decimal))
	}
	if p.TargetContract != "" {
		b.WriteString(fmt.Sprintf("Target: <code>%s</code>\n", p.TargetContract))
	}
	return b.String()
}

// FormatPendingList renders the pending proposal queue.
func FormatPendingList(ps []model.Proposal) string {
	if len(ps) == 0 {
		return "✅ No pending proposals"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Pending proposals</b> (%d)\n\n", len(ps)))
	for i := range ps {
		if i == maxListedProposals {
			b.WriteString(fmt.Sprintf("… and %d more\n", len(ps)-maxListedProposals))
			break
		}
		b.WriteString(FormatProposal(&ps[i]))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatApproval renders the outcome of an approve command.
func FormatApproval(id string, p *model.Proposal, tx *model.LedgerTransaction, err error) string {
	if err != nil {
		return fmt.Sprintf("❌ <b>Approval failed</b> %s\n\n%s", html.EscapeString(id), html.EscapeString(err.Error()))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("✅ <b>Proposal approved</b> %s\n\n", html.EscapeString(p.ID)))
	b.WriteString(fmt.Sprintf("Fund: %s\n", html.EscapeString(p.FundID)))
	if tx != nil {
		b.WriteString(fmt.Sprintf("Amount: %s\n", tx.Amount))
		b.WriteString(fmt.Sprintf("Tx: <code>%s</code>\n", tx.TxHash))
	}
	return b.String()
}

// FormatRejection renders the outcome of a reject command.
func FormatRejection(id string, err error) string {
	if err != nil {
		return fmt.Sprintf("❌ <b>Rejection failed</b> %s\n\n%s", html.EscapeString(id), html.EscapeString(err.Error()))
	}
	return fmt.Sprintf("🚫 <b>Proposal rejected</b> %s", html.EscapeString(id))
}
