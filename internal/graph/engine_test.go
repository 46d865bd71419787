package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportNode(id domain.NodeID) NodeHandler {
	return func(ctx context.Context, state *domain.AnalysisState) (domain.Report, error) {
		return domain.Report{Kind: domain.ReportAnalyst, Role: string(id), Text: string(id)}, nil
	}
}

func debateNode(stanceOf func(*domain.AnalysisState) domain.Stance) NodeHandler {
	return func(ctx context.Context, state *domain.AnalysisState) (domain.Report, error) {
		entry := domain.DebateEntry{Stance: state.Debate.CurrentStance, Round: state.Debate.Round, Content: "argument"}
		state.Debate.History = append(state.Debate.History, entry)
		return domain.Report{Kind: domain.ReportDebate, Debate: &entry}, nil
	}
}

func riskNode() NodeHandler {
	return func(ctx context.Context, state *domain.AnalysisState) (domain.Report, error) {
		entry := domain.RiskEntry{Stance: state.Risk.LatestStance, Round: state.Risk.Round, Content: "risk take"}
		state.Risk.History = append(state.Risk.History, entry)
		return domain.Report{Kind: domain.ReportRisk}, nil
	}
}

func newFullEngine(maxDebate, maxRisk int) *Engine {
	e := New(maxDebate, maxRisk, nil, zerolog.Nop())
	for _, id := range []domain.NodeID{
		domain.NodeMarketAnalyst, domain.NodeFundamentalsAnalyst, domain.NodeNewsAnalyst, domain.NodeSocialAnalyst,
		domain.NodeResearchManager, domain.NodeTrader, domain.NodeRiskManager,
	} {
		e.RegisterNode(id, reportNode(id))
	}
	e.RegisterNode(domain.NodeBullResearcher, debateNode(nil))
	e.RegisterNode(domain.NodeBearResearcher, debateNode(nil))
	e.RegisterNode(domain.NodeRiskyDebator, riskNode())
	e.RegisterNode(domain.NodeSafeDebator, riskNode())
	e.RegisterNode(domain.NodeNeutralDebator, riskNode())
	return e
}

func TestRunTraversesFullSequence(t *testing.T) {
	e := newFullEngine(2, 1)
	state := &domain.AnalysisState{Symbol: "AAPL", Reports: map[domain.NodeID]domain.Report{}}

	err := e.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Contains(t, state.CompletedSteps, domain.NodeMarketAnalyst)
	assert.Contains(t, state.CompletedSteps, domain.NodeRiskManager)
	assert.NotNil(t, state.FinishedAt)
}

func TestDebateRoundsCapAtTwiceMaxRounds(t *testing.T) {
	e := newFullEngine(2, 1)
	state := &domain.AnalysisState{Symbol: "AAPL", Reports: map[domain.NodeID]domain.Report{}}
	require.NoError(t, e.Run(context.Background(), state))

	bullBear := 0
	for _, step := range state.CompletedSteps {
		if step == domain.NodeBullResearcher || step == domain.NodeBearResearcher {
			bullBear++
		}
	}
	assert.Equal(t, 4, bullBear) // 2 * maxDebateRounds
}

func TestRiskRotationCapsAtThreeTimesMaxRounds(t *testing.T) {
	e := newFullEngine(1, 2)
	state := &domain.AnalysisState{Symbol: "AAPL", Reports: map[domain.NodeID]domain.Report{}}
	require.NoError(t, e.Run(context.Background(), state))

	riskTurns := 0
	for _, step := range state.CompletedSteps {
		switch step {
		case domain.NodeRiskyDebator, domain.NodeSafeDebator, domain.NodeNeutralDebator:
			riskTurns++
		}
	}
	assert.Equal(t, 6, riskTurns) // 3 * maxRiskRounds
}

func TestDebateRotationAlternatesBullBear(t *testing.T) {
	e := newFullEngine(2, 1)
	state := &domain.AnalysisState{Symbol: "AAPL", Reports: map[domain.NodeID]domain.Report{}}
	require.NoError(t, e.Run(context.Background(), state))

	var sequence []domain.NodeID
	for _, step := range state.CompletedSteps {
		if step == domain.NodeBullResearcher || step == domain.NodeBearResearcher {
			sequence = append(sequence, step)
		}
	}
	require.Len(t, sequence, 4)
	assert.Equal(t, domain.NodeBullResearcher, sequence[0])
	assert.Equal(t, domain.NodeBearResearcher, sequence[1])
	assert.Equal(t, domain.NodeBullResearcher, sequence[2])
	assert.Equal(t, domain.NodeBearResearcher, sequence[3])
}

func TestConsensusSeamEndsDebateEarly(t *testing.T) {
	e := New(5, 1, func(s *domain.AnalysisState) bool {
		return len(s.Debate.History) >= 1
	}, zerolog.Nop())
	for _, id := range []domain.NodeID{
		domain.NodeMarketAnalyst, domain.NodeFundamentalsAnalyst, domain.NodeNewsAnalyst, domain.NodeSocialAnalyst,
		domain.NodeResearchManager, domain.NodeTrader, domain.NodeRiskManager,
	} {
		e.RegisterNode(id, reportNode(id))
	}
	e.RegisterNode(domain.NodeBullResearcher, debateNode(nil))
	e.RegisterNode(domain.NodeBearResearcher, debateNode(nil))
	e.RegisterNode(domain.NodeRiskyDebator, riskNode())
	e.RegisterNode(domain.NodeSafeDebator, riskNode())
	e.RegisterNode(domain.NodeNeutralDebator, riskNode())

	state := &domain.AnalysisState{Symbol: "AAPL", Reports: map[domain.NodeID]domain.Report{}}
	require.NoError(t, e.Run(context.Background(), state))

	bullBear := 0
	for _, step := range state.CompletedSteps {
		if step == domain.NodeBullResearcher || step == domain.NodeBearResearcher {
			bullBear++
		}
	}
	assert.Equal(t, 1, bullBear)
}

func TestRunStopsOnHandlerError(t *testing.T) {
	e := New(1, 1, nil, zerolog.Nop())
	e.RegisterNode(domain.NodeMarketAnalyst, func(ctx context.Context, state *domain.AnalysisState) (domain.Report, error) {
		return domain.Report{}, errors.New("data source unavailable")
	})

	state := &domain.AnalysisState{Symbol: "AAPL", Reports: map[domain.NodeID]domain.Report{}}
	err := e.Run(context.Background(), state)

	require.Error(t, err)
	assert.Empty(t, state.CompletedSteps)
	assert.Len(t, state.Errors, 1)
}

func TestRunFailsOnMissingHandler(t *testing.T) {
	e := New(1, 1, nil, zerolog.Nop())
	state := &domain.AnalysisState{Symbol: "AAPL", Reports: map[domain.NodeID]domain.Report{}}
	err := e.Run(context.Background(), state)
	require.Error(t, err)
}
