// Package operator handles chat commands from the fund operators.
package operator

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sirupsen/logrus"

	"PensionSentinel/internal/approval"
	"PensionSentinel/internal/batch"
	"PensionSentinel/internal/model"
	"PensionSentinel/internal/notifier"
	"PensionSentinel/internal/store"
)

const helpText = `Available commands:
• /run : run the investment batch now
• /pending : list pending proposals
• /approve &lt;id&gt; : approve and execute a proposal
• /reject &lt;id&gt; : reject a proposal`

type Runner interface {
	RunNow(ctx context.Context) (*batch.Summary, error)
}

type Approver interface {
	Approve(ctx context.Context, id, approver string) (*approval.Result, error)
	Reject(ctx context.Context, id, approver string) (*model.Proposal, error)
}

type ProposalLister interface {
	ListProposals(ctx context.Context, f store.ProposalFilter) ([]model.Proposal, error)
}

// Handler maps chat commands onto batch runs and approval decisions.
type Handler struct {
	runner    Runner
	approver  Approver
	proposals ProposalLister
	log       logrus.FieldLogger
}

func NewHandler(r Runner, a Approver, p ProposalLister, log logrus.FieldLogger) *Handler {
	return &Handler{runner: r, approver: a, proposals: p, log: log.WithField("component", "operator")}
}

// HandleCommand processes a user command and returns a reply.
func (h *Handler) HandleCommand(ctx context.Context, cmd notifier.Command) string {
	fields := strings.Fields(cmd.Text)
	if len(fields) == 0 {
		return helpText
	}
	name := strings.ToLower(fields[0])
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i] // /approve@SentinelBot
	}
	args := fields[1:]

	switch name {
	case "/run":
		sum, err := h.runner.RunNow(ctx)
		return notifier.FormatBatchSummary(sum, err)
	case "/pending":
		ps, err := h.proposals.ListProposals(ctx, store.ProposalFilter{Status: model.StatusPending})
		if err != nil {
			h.log.WithError(err).Error("list pending proposals failed")
			return "❌ Could not list pending proposals: " + html.EscapeString(err.Error())
		}
		return notifier.FormatPendingList(ps)
	case "/approve", "/reject":
		if len(args) != 1 {
			return fmt.Sprintf("Usage: %s &lt;proposal id&gt;", name)
		}
		if cmd.Username == "" {
			return "❌ A Telegram username is required to record who made the decision"
		}
		approver := "telegram:" + cmd.Username
		if name == "/approve" {
			res, err := h.approver.Approve(ctx, args[0], approver)
			if err != nil {
				return notifier.FormatApproval(args[0], nil, nil, err)
			}
			return notifier.FormatApproval(args[0], res.Proposal, res.Transaction, nil)
		}
		_, err := h.approver.Reject(ctx, args[0], approver)
		return notifier.FormatRejection(args[0], err)
	default:
		return helpText
	}
}
