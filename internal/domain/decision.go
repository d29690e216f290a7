package domain

import (
	"time"

	"github.com/google/uuid"
)

// DecisionType classifies what an agent decided.
type DecisionType string

const (
	DecisionRegimeDetection       DecisionType = "REGIME_DETECTION"
	DecisionAlphaGeneration       DecisionType = "ALPHA_GENERATION"
	DecisionPortfolioOptimization DecisionType = "PORTFOLIO_OPTIMIZATION"
	DecisionPortfolioHold         DecisionType = "PORTFOLIO_HOLD"
	DecisionApprove               DecisionType = "APPROVE"
	DecisionVeto                  DecisionType = "VETO"
)

// Decision is the auditable output of one agent execution.
type Decision struct {
	ID             string                 `json:"id"`
	AgentName      string                 `json:"agent_name"`
	Type           DecisionType           `json:"decision_type"`
	Recommendation Recommendation         `json:"recommendation"`
	Confidence     float64                `json:"confidence"`
	Reasoning      string                 `json:"reasoning"`
	Metadata       map[string]interface{} `json:"metadata"`
	Timestamp      time.Time              `json:"timestamp"`
}

// NewDecision stamps a decision with an ID and the wall clock; agents
// restamp it with their own clock on execution. Confidence is clamped to
// [0, 1].
func NewDecision(agent string, kind DecisionType, rec Recommendation, confidence float64, reasoning string, metadata map[string]interface{}) *Decision {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return &Decision{
		ID:             uuid.New().String(),
		AgentName:      agent,
		Type:           kind,
		Recommendation: rec,
		Confidence:     confidence,
		Reasoning:      reasoning,
		Metadata:       metadata,
		Timestamp:      time.Now(),
	}
}
