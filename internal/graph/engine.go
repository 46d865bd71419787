// Package graph implements the analysis graph engine: a node table per
// analysis kind that advances one symbol's AnalysisState through the
// analyst, debate, and risk stages. Routing within a kind's sequence is
// data-driven off the state's debate/risk round counters rather than
// branching in caller code, mirroring the reference conditional-logic
// router this was ported from.
package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
)

// NodeHandler executes one node of the graph and returns the Report it
// produced. The engine stores the report and advances the state's
// bookkeeping fields; node handlers never see or set CurrentNode/CompletedSteps.
type NodeHandler func(ctx context.Context, state *domain.AnalysisState) (domain.Report, error)

// Sentinel steps expand into a sub-sequence or fan-out rather than a single
// handler call. They never appear in e.nodes.
const (
	stepParallelAnalysts domain.NodeID = "__parallel_analysts__"
	stepDebateRotation   domain.NodeID = "__debate_rotation__"
	stepRiskRotation     domain.NodeID = "__risk_rotation__"
	stepOptionalRisk     domain.NodeID = "__optional_risk__"
)

// NodeTable is the per-analysis-kind node sequence: the ordered steps
// transition walks to drive an AnalysisState to completion. This is the
// "graph is data, not code paths" requirement — reimplementable in any
// language as a flat table plus a loop.
var NodeTable = map[domain.AnalysisKind][]domain.NodeID{
	domain.KindFundamentals: {domain.NodeFundamentalsAnalyst, stepOptionalRisk},
	domain.KindTechnical:    {domain.NodeMarketAnalyst, stepOptionalRisk},
	domain.KindNews:         {domain.NodeNewsAnalyst, stepOptionalRisk},
	domain.KindDebate: {
		domain.NodeFundamentalsAnalyst,
		domain.NodeMarketAnalyst,
		stepDebateRotation,
		domain.NodeResearchManager,
	},
	domain.KindComprehensive: {
		stepParallelAnalysts,
		stepDebateRotation,
		domain.NodeRiskManager,
		domain.NodeResearchManager,
		domain.NodeTrader,
		stepRiskRotation,
	},
}

// legacySequence is the node sequence run when a state's Kind is unset: the
// full analyst -> debate -> research manager -> trader -> risk rotation
// pipeline this engine originally shipped with, kept as the default for
// callers that predate per-kind dispatch.
var legacySequence = []domain.NodeID{
	domain.NodeMarketAnalyst,
	domain.NodeFundamentalsAnalyst,
	domain.NodeNewsAnalyst,
	domain.NodeSocialAnalyst,
	stepDebateRotation,
	domain.NodeResearchManager,
	domain.NodeTrader,
	stepRiskRotation,
}

// Engine runs the node sequence appropriate for a request's analysis kind.
type Engine struct {
	nodes           map[domain.NodeID]NodeHandler
	maxDebateRounds int
	maxRiskRounds   int
	consensus       domain.ConsensusFunc
	log             zerolog.Logger
}

// New creates an engine. A nil consensus defaults to domain.AlwaysContinue.
func New(maxDebateRounds, maxRiskRounds int, consensus domain.ConsensusFunc, log zerolog.Logger) *Engine {
	if consensus == nil {
		consensus = domain.AlwaysContinue
	}
	return &Engine{
		nodes:           make(map[domain.NodeID]NodeHandler),
		maxDebateRounds: maxDebateRounds,
		maxRiskRounds:   maxRiskRounds,
		consensus:       consensus,
		log:             log.With().Str("component", "graph").Logger(),
	}
}

// RegisterNode binds a handler to a node ID.
func (e *Engine) RegisterNode(id domain.NodeID, handler NodeHandler) {
	e.nodes[id] = handler
}

// sequenceFor returns the node sequence for a state's analysis kind. An
// empty Kind runs the legacy full pipeline for backward compatibility.
func sequenceFor(kind domain.AnalysisKind) ([]domain.NodeID, bool) {
	if kind == "" {
		return legacySequence, true
	}
	seq, ok := NodeTable[kind]
	return seq, ok
}

// Run drives state through the sequence registered for its Kind, calling
// each node's handler in turn. It stops and returns an error the first time
// a node handler fails; partial progress (CompletedSteps, Reports so far)
// is left on state for the caller to inspect. Failures of the parallel
// analyst branches are the exception: they are recorded in state.Errors and
// the run continues.
func (e *Engine) Run(ctx context.Context, state *domain.AnalysisState) error {
	sequence, ok := sequenceFor(state.Kind)
	if !ok {
		return fmt.Errorf("no node sequence registered for analysis kind %q", state.Kind)
	}

	for _, step := range sequence {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch step {
		case stepParallelAnalysts:
			if err := e.runParallelAnalysts(ctx, state); err != nil {
				return err
			}
		case stepDebateRotation:
			if state.Kind == domain.KindComprehensive && !state.EnableDebate {
				continue
			}
			state.Debate = domain.DebateState{}
			if err := e.runDebateRotation(ctx, state); err != nil {
				return err
			}
		case stepRiskRotation:
			state.Risk = domain.RiskDebateState{}
			if err := e.runRiskRotation(ctx, state); err != nil {
				return err
			}
		case stepOptionalRisk:
			if !state.EnableRiskManager {
				continue
			}
			if err := e.runStep(ctx, state, domain.NodeRiskManager); err != nil {
				return err
			}
		default:
			if err := e.runStep(ctx, state, step); err != nil {
				return err
			}
		}
	}

	state.CurrentNode = domain.NodeDone
	now := time.Now()
	state.FinishedAt = &now
	return nil
}

// runStep calls the handler registered for node, then records its report and
// marks the node complete.
func (e *Engine) runStep(ctx context.Context, state *domain.AnalysisState, node domain.NodeID) error {
	handler, ok := e.nodes[node]
	if !ok {
		return fmt.Errorf("no handler registered for node %s", node)
	}

	state.CurrentNode = node
	report, err := handler(ctx, state)
	if err != nil {
		state.Errors = append(state.Errors, fmt.Sprintf("%s: %v", node, err))
		return fmt.Errorf("node %s failed: %w", node, err)
	}

	state.Reports[node] = report
	state.CompletedSteps = append(state.CompletedSteps, node)
	e.log.Debug().Str("symbol", state.Symbol).Str("node", string(node)).Msg("node completed")
	return nil
}

// runParallelAnalysts fans the fundamentals/market/news analysts out onto
// their own goroutines, each working a defensive copy of state, and merges
// their reports back in by node key once all three finish. Conflicts are
// impossible by construction: each branch only ever writes its own slot.
func (e *Engine) runParallelAnalysts(ctx context.Context, state *domain.AnalysisState) error {
	branches := []domain.NodeID{domain.NodeFundamentalsAnalyst, domain.NodeMarketAnalyst, domain.NodeNewsAnalyst}

	type outcome struct {
		node   domain.NodeID
		report domain.Report
		err    error
	}

	results := make(chan outcome, len(branches))
	var wg sync.WaitGroup
	for _, node := range branches {
		handler, ok := e.nodes[node]
		if !ok {
			return fmt.Errorf("no handler registered for node %s", node)
		}
		branchState := state.Clone()
		wg.Add(1)
		go func(node domain.NodeID, handler NodeHandler, branchState *domain.AnalysisState) {
			defer wg.Done()
			report, err := handler(ctx, branchState)
			results <- outcome{node: node, report: report, err: err}
		}(node, handler, branchState)
	}
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			state.Errors = append(state.Errors, fmt.Sprintf("%s: %v", res.node, res.err))
			e.log.Warn().Str("symbol", state.Symbol).Str("node", string(res.node)).Err(res.err).Msg("parallel analyst failed")
			continue
		}
		state.Reports[res.node] = res.report
		state.CompletedSteps = append(state.CompletedSteps, res.node)
	}
	return nil
}

// runDebateRotation runs bull/bear turns until continueDebate signals exit.
func (e *Engine) runDebateRotation(ctx context.Context, state *domain.AnalysisState) error {
	for {
		next, ok := e.continueDebate(state)
		if !ok {
			return nil
		}
		if err := e.runStep(ctx, state, next); err != nil {
			return err
		}
	}
}

// runRiskRotation runs risky/safe/neutral turns until continueRisk signals
// exit, then makes the rotation's required final call into the risk manager.
func (e *Engine) runRiskRotation(ctx context.Context, state *domain.AnalysisState) error {
	for {
		next, ok := e.continueRisk(state)
		if !ok {
			break
		}
		if err := e.runStep(ctx, state, next); err != nil {
			return err
		}
	}
	return e.runStep(ctx, state, domain.NodeRiskManager)
}

// continueDebate decides the next debate speaker, or reports the rotation
// is done. Round counts complete bull+bear pairs, so the round cap is only
// evaluated when a new pair would start (CurrentStance is ""/bear) — not on
// the bear-turn that immediately follows a bull turn. The consensus seam,
// by contrast, is checked on every turn: it is a content signal, not a
// counter, and may fire mid-pair.
func (e *Engine) continueDebate(state *domain.AnalysisState) (domain.NodeID, bool) {
	if e.consensus(state) {
		return "", false
	}

	startingNewPair := state.Debate.CurrentStance == "" || state.Debate.CurrentStance == domain.StanceBear
	if startingNewPair && state.Debate.Round >= e.maxDebateRounds {
		return "", false
	}

	if startingNewPair {
		state.Debate.CurrentStance = domain.StanceBull
		state.Debate.Round++
		return domain.NodeBullResearcher, true
	}

	state.Debate.CurrentStance = domain.StanceBear
	return domain.NodeBearResearcher, true
}

// continueRisk decides the next risk debator, or reports the rotation is
// done. Round counts complete risky+safe+neutral cycles, so the round cap
// is only evaluated when a new cycle would start (LatestStance is
// ""/neutral); consensus is checked on every turn.
func (e *Engine) continueRisk(state *domain.AnalysisState) (domain.NodeID, bool) {
	if e.consensus(state) {
		return "", false
	}

	startingNewCycle := state.Risk.LatestStance == "" || state.Risk.LatestStance == domain.RiskStanceNeutral
	if startingNewCycle && state.Risk.Round >= e.maxRiskRounds {
		return "", false
	}

	switch state.Risk.LatestStance {
	case "", domain.RiskStanceNeutral:
		state.Risk.LatestStance = domain.RiskStanceRisky
		state.Risk.Round++
		return domain.NodeRiskyDebator, true
	case domain.RiskStanceRisky:
		state.Risk.LatestStance = domain.RiskStanceSafe
		return domain.NodeSafeDebator, true
	default: // domain.RiskStanceSafe
		state.Risk.LatestStance = domain.RiskStanceNeutral
		return domain.NodeNeutralDebator, true
	}
}
