// Package proposal turns a fund's excess into scored allocation proposals.
package proposal

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"PensionSentinel/internal/analyzer"
	"PensionSentinel/internal/asset"
	"PensionSentinel/internal/model"
	"PensionSentinel/internal/opportunity"
)

// Result holds the allocations for one fund and the analyzer that made them.
type Result struct {
	Allocations []analyzer.Allocation
	Source      string
}

// Generator fetches candidates and scores them. The primary analyzer is
// fixed at construction; the heuristic backs it up when it fails.
type Generator struct {
	source   opportunity.Source
	analyzer analyzer.Analyzer
	fallback analyzer.Analyzer
	log      logrus.FieldLogger
}

// NewGenerator wires a generator. A nil primary uses the heuristic only.
func NewGenerator(src opportunity.Source, primary analyzer.Analyzer, log logrus.FieldLogger) *Generator {
	fallback := analyzer.Heuristic{}
	if primary == nil {
		primary = fallback
	}
	return &Generator{source: src, analyzer: primary, fallback: fallback, log: log}
}

// AnalyzerName reports which primary analyzer is in use.
func (g *Generator) AnalyzerName() string { return g.analyzer.Name() }

// Generate returns allocations for excess. It never writes storage; an
// empty Result means there was nothing to propose.
func (g *Generator) Generate(ctx context.Context, risk model.RiskLevel, a asset.Asset, duration string, excess decimal.Decimal) (Result, error) {
	log := g.log.WithFields(logrus.Fields{"risk": risk, "asset": a.Symbol})

	candidates := g.source.Candidates(ctx, risk, a.Symbol)
	if len(candidates) == 0 {
		log.Info("no candidate contracts available")
		return Result{}, nil
	}

	req := analyzer.Request{
		Risk:       risk,
		Asset:      a,
		Duration:   duration,
		Excess:     excess,
		Candidates: candidates,
	}
	allocs, err := g.analyzer.Analyze(ctx, req)
	if err == nil && len(allocs) > 0 {
		log.WithFields(logrus.Fields{"analyzer": g.analyzer.Name(), "count": len(allocs)}).Info("generated allocations")
		return Result{Allocations: allocs, Source: g.analyzer.Name()}, nil
	}
	if err != nil {
		log.WithError(err).WithField("analyzer", g.analyzer.Name()).Warn("analyzer failed, using heuristic fallback")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	allocs, err = g.fallback.Analyze(ctx, req)
	if err != nil {
		return Result{}, err
	}
	log.WithField("count", len(allocs)).Info("generated heuristic allocations")
	return Result{Allocations: allocs, Source: g.fallback.Name()}, nil
}
