package graph

import (
	"gonum.org/v1/gonum/stat"

	"github.com/quantdesk/orchestrator/internal/domain"
)

// varianceConsensusThreshold is the risk-score variance below which the
// risky/safe/neutral rotation is considered to have converged.
const varianceConsensusThreshold = 0.5

// ScoreVarianceConsensus ends a risk rotation early once the latest full
// cycle's scores stop moving. It reads only the risk history, so it never
// ends a bull/bear debate early. Low variance across
// risky/safe/neutral risk scores means the three stances have converged on
// roughly the same view and further rounds would just restate it.
func ScoreVarianceConsensus(state *domain.AnalysisState) bool {
	if len(state.Risk.History) < 3 {
		return false
	}

	recent := state.Risk.History[len(state.Risk.History)-3:]
	scores := make([]float64, 0, 3)
	for _, entry := range recent {
		if entry.Stance == "" {
			continue
		}
		scores = append(scores, scoreFor(state, entry))
	}
	if len(scores) < 3 {
		return false
	}

	return stat.Variance(scores, nil) < varianceConsensusThreshold
}

// scoreFor pulls the numeric risk score a RiskEntry's stance produced, read
// back from the matching Report rather than carried on RiskEntry itself.
func scoreFor(state *domain.AnalysisState, entry domain.RiskEntry) float64 {
	var node domain.NodeID
	switch entry.Stance {
	case domain.RiskStanceRisky:
		node = domain.NodeRiskyDebator
	case domain.RiskStanceSafe:
		node = domain.NodeSafeDebator
	default:
		node = domain.NodeNeutralDebator
	}
	if report, ok := state.Reports[node]; ok && report.Risk != nil {
		return report.Risk.Score
	}
	return 0
}
