// Package agent implements the generic role invocation every analysis
// graph node runs through: recall relevant memory, build the prompt for
// that role, route a completion through the LLM layer, and shape the
// result into the Report variant the graph engine expects.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/quantdesk/orchestrator/internal/llm"
	"github.com/quantdesk/orchestrator/internal/llm/router"
	"github.com/quantdesk/orchestrator/internal/memory"
	"github.com/rs/zerolog"
)

// RoleSpec configures one node's behavior: which task type picks its model
// candidates, which memory collection (if any) it recalls from and writes
// back to, and the system prompt framing its role.
type RoleSpec struct {
	Task             domain.LLMTask
	Kind             domain.ReportKind
	SystemPrompt     string
	MemoryCollection string // empty disables recall/write for this role
}

// roleSpecs maps every non-terminal node to its behavior. Prompts are
// deliberately short: the completion request carries the accumulated
// analysis context, not a restatement of the role.
var roleSpecs = map[domain.NodeID]RoleSpec{
	domain.NodeMarketAnalyst: {
		Task:         domain.TaskAnalysis,
		Kind:         domain.ReportAnalyst,
		SystemPrompt: "You are a market analyst. Review recent price action and technical indicators and summarize the trend.",
	},
	domain.NodeFundamentalsAnalyst: {
		Task:             domain.TaskAnalysis,
		Kind:             domain.ReportAnalyst,
		SystemPrompt:     "You are a fundamentals analyst. Review the company's financial statements and valuation ratios.",
		MemoryCollection: memory.CollectionFundamentals,
	},
	domain.NodeNewsAnalyst: {
		Task:         domain.TaskAnalysis,
		Kind:         domain.ReportAnalyst,
		SystemPrompt: "You are a news analyst. Summarize recent headlines and their likely market impact.",
	},
	domain.NodeSocialAnalyst: {
		Task:         domain.TaskAnalysis,
		Kind:         domain.ReportAnalyst,
		SystemPrompt: "You are a social sentiment analyst. Summarize prevailing retail and social sentiment.",
	},
	domain.NodeBullResearcher: {
		Task:             domain.TaskDebate,
		Kind:             domain.ReportDebate,
		SystemPrompt:     "You are the bull researcher in an investment debate. Argue the case for owning this stock, directly rebutting the bear researcher's last point if one exists.",
		MemoryCollection: memory.CollectionBull,
	},
	domain.NodeBearResearcher: {
		Task:             domain.TaskDebate,
		Kind:             domain.ReportDebate,
		SystemPrompt:     "You are the bear researcher in an investment debate. Argue the case against owning this stock, directly rebutting the bull researcher's last point if one exists.",
		MemoryCollection: memory.CollectionBear,
	},
	domain.NodeResearchManager: {
		Task:             domain.TaskDebate,
		Kind:             domain.ReportAnalyst,
		SystemPrompt:     "You are the research manager. Read the full bull/bear debate and render a judgment on which side made the stronger case.",
		MemoryCollection: memory.CollectionResearchManager,
	},
	domain.NodeTrader: {
		Task:             domain.TaskRiskAssessment,
		Kind:             domain.ReportFinal,
		SystemPrompt:     "You are the trader. Given the analyst reports and the research manager's judgment, decide BUY, SELL, or HOLD with a confidence from 0 to 1 and brief reasoning.",
		MemoryCollection: memory.CollectionTrader,
	},
	domain.NodeRiskyDebator: {
		Task:         domain.TaskRiskAssessment,
		Kind:         domain.ReportRisk,
		SystemPrompt: "You are the risky-stance debator in a risk review. Argue for taking the trader's recommended position at full size.",
	},
	domain.NodeSafeDebator: {
		Task:         domain.TaskRiskAssessment,
		Kind:         domain.ReportRisk,
		SystemPrompt: "You are the safe-stance debator in a risk review. Argue for reducing size or skipping the trader's recommended position.",
	},
	domain.NodeNeutralDebator: {
		Task:         domain.TaskRiskAssessment,
		Kind:         domain.ReportRisk,
		SystemPrompt: "You are the neutral-stance debator in a risk review. Weigh the risky and safe arguments and propose a middle course.",
	},
	domain.NodeRiskManager: {
		Task:             domain.TaskRiskAssessment,
		Kind:             domain.ReportRisk,
		SystemPrompt:     "You are the risk manager. Read the risky/safe/neutral debate and render the final risk verdict: level (low, medium, high), a 0-1 score, and the reasoning.",
		MemoryCollection: memory.CollectionRiskManager,
	},
}

// recallLimit is how many past situations each role recalls before acting.
const recallLimit = 3

// Invoker is the shared NodeHandler factory every graph node is built from.
// It has no per-node state of its own; RoleSpec supplies that.
type Invoker struct {
	router *router.Router
	memory *memory.Store
	log    zerolog.Logger
}

// New builds an Invoker over a completion router and a memory store.
func New(r *router.Router, m *memory.Store, log zerolog.Logger) *Invoker {
	return &Invoker{router: r, memory: m, log: log.With().Str("component", "agent").Logger()}
}

// Invoke runs one role's turn: recall memory, build the prompt, complete,
// shape the Report, and persist the turn back into state and memory. It
// matches graph.NodeHandler's signature so it can be registered directly.
func (inv *Invoker) Invoke(ctx context.Context, role domain.NodeID, state *domain.AnalysisState) (domain.Report, error) {
	spec, ok := roleSpecs[role]
	if !ok {
		return domain.Report{}, fmt.Errorf("agent: no role spec for node %s", role)
	}

	situation := renderSituation(state)

	var recalls []memory.Recall
	if spec.MemoryCollection != "" && inv.memory != nil {
		var err error
		recalls, err = inv.memory.GetMemories(ctx, spec.MemoryCollection, situation, recallLimit)
		if err != nil {
			inv.log.Warn().Err(err).Str("node", string(role)).Msg("memory recall failed, continuing without it")
		}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: spec.SystemPrompt},
		{Role: llm.RoleUser, Content: buildPrompt(situation, recalls)},
	}

	resp, err := inv.router.Complete(ctx, spec.Task, "auto", llm.CompletionRequest{Messages: messages})
	if err != nil {
		return domain.Report{}, fmt.Errorf("agent: %s completion failed: %w", role, err)
	}

	report := inv.shapeReport(role, spec, state, resp.Content)

	if spec.MemoryCollection != "" && inv.memory != nil {
		if _, err := inv.memory.Add(ctx, spec.MemoryCollection, situation, resp.Content, nil); err != nil {
			inv.log.Warn().Err(err).Str("node", string(role)).Msg("memory write failed")
		}
	}

	state.Messages = append(state.Messages, fmt.Sprintf("[%s] %s", role, resp.Content))
	return report, nil
}

// HandlerFor adapts Invoke into the graph engine's NodeHandler shape for a
// fixed role, so callers can write e.graph.RegisterNode(id, invoker.HandlerFor(id)).
func (inv *Invoker) HandlerFor(role domain.NodeID) func(ctx context.Context, state *domain.AnalysisState) (domain.Report, error) {
	return func(ctx context.Context, state *domain.AnalysisState) (domain.Report, error) {
		return inv.Invoke(ctx, role, state)
	}
}

// shapeReport turns the raw completion text into the Report variant the
// role produces, also updating the debate/risk history the graph engine
// doesn't own itself.
func (inv *Invoker) shapeReport(role domain.NodeID, spec RoleSpec, state *domain.AnalysisState, text string) domain.Report {
	report := domain.Report{Kind: spec.Kind, Role: string(role), Text: text}

	switch role {
	case domain.NodeBullResearcher, domain.NodeBearResearcher:
		entry := domain.DebateEntry{
			Stance:    stanceFor(role),
			Content:   text,
			Round:     state.Debate.Round,
			Timestamp: time.Now(),
		}
		state.Debate.History = append(state.Debate.History, entry)
		report.Debate = &entry

	case domain.NodeRiskyDebator, domain.NodeSafeDebator, domain.NodeNeutralDebator:
		entry := domain.RiskEntry{
			Stance:    riskStanceFor(role),
			Content:   text,
			Round:     state.Risk.Round,
			Timestamp: time.Now(),
		}
		state.Risk.History = append(state.Risk.History, entry)
		report.Risk = &domain.RiskAssessment{
			Level: parseRiskLevel(text),
			Score: parseRiskScore(text),
			Text:  text,
		}

	case domain.NodeRiskManager:
		report.Risk = &domain.RiskAssessment{
			Level: parseRiskLevel(text),
			Score: parseRiskScore(text),
			Text:  text,
		}
		state.Risk.JudgeDecision = text

	case domain.NodeResearchManager:
		state.Debate.JudgeDecision = text

	case domain.NodeTrader:
		report.Final = parseRecommendation(text)
	}

	return report
}

func stanceFor(role domain.NodeID) domain.Stance {
	if role == domain.NodeBullResearcher {
		return domain.StanceBull
	}
	return domain.StanceBear
}

func riskStanceFor(role domain.NodeID) domain.RiskStance {
	switch role {
	case domain.NodeRiskyDebator:
		return domain.RiskStanceRisky
	case domain.NodeSafeDebator:
		return domain.RiskStanceSafe
	default:
		return domain.RiskStanceNeutral
	}
}

// renderSituation summarizes the state accumulated so far into the text
// used both as the memory recall query and as part of the completion
// prompt. It intentionally stays compact: full report text is expensive to
// carry through every subsequent node's context window.
func renderSituation(state *domain.AnalysisState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s (%s)\n", state.Symbol, state.Market)
	for _, step := range state.CompletedSteps {
		report, ok := state.Reports[step]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", step, truncate(report.Text, 400))
	}
	if state.Debate.JudgeDecision != "" {
		fmt.Fprintf(&b, "research manager judgment: %s\n", truncate(state.Debate.JudgeDecision, 400))
	}
	if state.Risk.JudgeDecision != "" {
		fmt.Fprintf(&b, "risk manager verdict: %s\n", truncate(state.Risk.JudgeDecision, 400))
	}
	return b.String()
}

func buildPrompt(situation string, recalls []memory.Recall) string {
	var b strings.Builder
	b.WriteString(situation)
	if len(recalls) > 0 {
		b.WriteString("\nSimilar past situations:\n")
		for _, r := range recalls {
			fmt.Fprintf(&b, "- %s -> %s\n", truncate(r.Situation, 200), truncate(r.Recommendation, 200))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// parseRecommendation extracts a BUY/SELL/HOLD action from free-form trader
// text. It looks for the keywords anywhere in the text, and BUY is checked
// before SELL, so text containing both yields BUY; anything unrecognized
// defaults to HOLD with low confidence rather than failing the run.
func parseRecommendation(text string) *domain.Recommendation {
	upper := strings.ToUpper(text)
	rec := &domain.Recommendation{Action: "HOLD", Confidence: 0.5, Reasoning: text}
	switch {
	case strings.Contains(upper, "BUY"):
		rec.Action = "BUY"
	case strings.Contains(upper, "SELL"):
		rec.Action = "SELL"
	}
	rec.Confidence = parseConfidence(text)
	return rec
}

func parseConfidence(text string) float64 {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "high confidence"):
		return 0.8
	case strings.Contains(lower, "low confidence"):
		return 0.3
	default:
		return 0.5
	}
}

func parseRiskLevel(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "high risk") || strings.Contains(lower, "level: high"):
		return "high"
	case strings.Contains(lower, "low risk") || strings.Contains(lower, "level: low"):
		return "low"
	default:
		return "medium"
	}
}

func parseRiskScore(text string) float64 {
	switch parseRiskLevel(text) {
	case "high":
		return 0.8
	case "low":
		return 0.2
	default:
		return 0.5
	}
}
