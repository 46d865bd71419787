package graph

import (
	"testing"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/stretchr/testify/assert"
)

func stateWithRiskScores(scores [3]float64) *domain.AnalysisState {
	return &domain.AnalysisState{
		Risk: domain.RiskDebateState{
			History: []domain.RiskEntry{
				{Stance: domain.RiskStanceRisky},
				{Stance: domain.RiskStanceSafe},
				{Stance: domain.RiskStanceNeutral},
			},
		},
		Reports: map[domain.NodeID]domain.Report{
			domain.NodeRiskyDebator:   {Kind: domain.ReportRisk, Risk: &domain.RiskAssessment{Score: scores[0]}},
			domain.NodeSafeDebator:    {Kind: domain.ReportRisk, Risk: &domain.RiskAssessment{Score: scores[1]}},
			domain.NodeNeutralDebator: {Kind: domain.ReportRisk, Risk: &domain.RiskAssessment{Score: scores[2]}},
		},
	}
}

func TestScoreVarianceConsensusTrueWhenScoresAgree(t *testing.T) {
	state := stateWithRiskScores([3]float64{5.0, 5.1, 4.9})
	assert.True(t, ScoreVarianceConsensus(state))
}

func TestScoreVarianceConsensusFalseWhenScoresDiverge(t *testing.T) {
	state := stateWithRiskScores([3]float64{1.0, 5.0, 9.0})
	assert.False(t, ScoreVarianceConsensus(state))
}

func TestScoreVarianceConsensusFalseBeforeFullCycle(t *testing.T) {
	state := &domain.AnalysisState{Risk: domain.RiskDebateState{History: []domain.RiskEntry{{Stance: domain.RiskStanceRisky}}}}
	assert.False(t, ScoreVarianceConsensus(state))
}
