package domain

import "time"

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	StatusIdle       AgentStatus = "idle"
	StatusProcessing AgentStatus = "processing"
	StatusWaiting    AgentStatus = "waiting"
	StatusError      AgentStatus = "error"
	StatusDisabled   AgentStatus = "disabled"
)

// AgentSnapshot is a point-in-time view of an agent.
type AgentSnapshot struct {
	Name          string      `json:"name"`
	Status        AgentStatus `json:"status"`
	ErrorCount    int         `json:"error_count"`
	LastExecution *time.Time  `json:"last_execution"`
	DecisionCount int         `json:"decision_count"`
	QueueSize     int         `json:"queue_size"`
}
