// Package coordinator routes messages between agents, runs named workflows
// and keeps the global message and decision logs.
package coordinator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/domain"
)

// DefaultMessageHistory bounds the global message history.
const DefaultMessageHistory = 10000

// DecisionEntry is one row of the decision log.
type DecisionEntry struct {
	Timestamp time.Time        `json:"timestamp"`
	Agent     string           `json:"agent"`
	Decision  *domain.Decision `json:"decision"`
}

// Observer is notified of every logged decision and routed message.
// Callbacks run on the caller's goroutine after the coordinator has released
// its locks.
type Observer interface {
	OnDecision(entry DecisionEntry)
	OnMessage(msg domain.Message)
}

// Coordinator owns the agent registry and the global logs.
type Coordinator struct {
	log zerolog.Logger
	now func() time.Time

	mu     sync.RWMutex
	agents map[string]agents.Agent

	logMu        sync.Mutex
	messages     []domain.Message
	historyLimit int
	decisions    []DecisionEntry

	obsMu     sync.RWMutex
	observers []Observer

	workflows map[string]workflowFunc
}

// New creates an empty coordinator.
func New(log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		log:          log.With().Str("component", "coordinator").Logger(),
		now:          time.Now,
		agents:       make(map[string]agents.Agent),
		historyLimit: DefaultMessageHistory,
	}
	c.workflows = map[string]workflowFunc{
		WorkflowRegimeDetection: c.regimeDetection,
		WorkflowTradeValidation: c.tradeValidation,
		WorkflowFullCycle:       c.fullCycle,
		WorkflowRebalanceCycle:  c.rebalanceCycle,
	}
	return c
}

// SetClock replaces the time source used for log timestamps.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// SetMessageHistoryLimit changes the message history bound; values below 1
// are ignored.
func (c *Coordinator) SetMessageHistoryLimit(n int) {
	if n < 1 {
		return
	}
	c.logMu.Lock()
	defer c.logMu.Unlock()
	c.historyLimit = n
	c.trimMessages()
}

// Subscribe adds an observer.
func (c *Coordinator) Subscribe(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Coordinator) snapshotObservers() []Observer {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	return append([]Observer(nil), c.observers...)
}

// Register adds an agent. An agent with the same name is replaced.
func (c *Coordinator) Register(a agents.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.agents[a.Name()] = a
	c.log.Info().Str("agent", a.Name()).Msg("Agent registered")
}

// Agent returns a registered agent by name.
func (c *Coordinator) Agent(name string) (agents.Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.agents[name]
	return a, ok
}

// Names returns the registered agent names in sorted order.
func (c *Coordinator) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.agents))
	for name := range c.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send records a message and delivers it to the recipient's queue. The
// message stays in history even when the recipient is unknown.
func (c *Coordinator) Send(msg domain.Message) error {
	c.logMu.Lock()
	c.messages = append(c.messages, msg)
	c.trimMessages()
	c.logMu.Unlock()

	recipient, ok := c.Agent(msg.Recipient)

	for _, o := range c.snapshotObservers() {
		o.OnMessage(msg)
	}

	if !ok {
		c.log.Error().Str("recipient", msg.Recipient).Str("message_type", msg.Type).Msg("Recipient agent not found")
		return fmt.Errorf("recipient %q: %w", msg.Recipient, domain.ErrAgentNotFound)
	}
	recipient.ReceiveMessage(msg)
	c.log.Debug().
		Str("sender", msg.Sender).
		Str("recipient", msg.Recipient).
		Str("message_type", msg.Type).
		Msg("Message routed")
	return nil
}

// Broadcast sends one message per registered agent other than the sender and
// the excluded names. It returns the messages sent.
func (c *Coordinator) Broadcast(sender, msgType string, payload map[string]interface{}, exclude ...string) []domain.Message {
	return c.broadcast(sender, msgType, payload, exclude)
}

// ExecuteAgent runs one agent and logs its decision. A nil decision with a
// nil error means the agent ran but failed; its status carries the details.
func (c *Coordinator) ExecuteAgent(name string, in agents.Input) (*domain.Decision, error) {
	a, ok := c.Agent(name)
	if !ok {
		c.log.Error().Str("agent", name).Msg("Agent not found")
		return nil, fmt.Errorf("%s: %w", name, domain.ErrAgentNotFound)
	}

	d := a.Execute(in)
	if d == nil {
		return nil, nil
	}

	entry := DecisionEntry{Timestamp: c.now(), Agent: name, Decision: d}
	c.logMu.Lock()
	c.decisions = append(c.decisions, entry)
	c.logMu.Unlock()

	for _, o := range c.snapshotObservers() {
		o.OnDecision(entry)
	}
	return d, nil
}

// Statuses returns a snapshot of every agent keyed by name.
func (c *Coordinator) Statuses() map[string]domain.AgentSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]domain.AgentSnapshot, len(c.agents))
	for name, a := range c.agents {
		out[name] = a.Status()
	}
	return out
}

// MessageHistory returns up to limit of the most recent messages, oldest
// first. A limit of 0 or less returns everything.
func (c *Coordinator) MessageHistory(limit int) []domain.Message {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	return tail(c.messages, limit)
}

// DecisionLog returns up to limit of the most recent decisions, oldest first.
func (c *Coordinator) DecisionLog(limit int) []DecisionEntry {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	return tail(c.decisions, limit)
}

// DecisionLogFor filters the decision log by agent.
func (c *Coordinator) DecisionLogFor(agent string, limit int) []DecisionEntry {
	c.logMu.Lock()
	var matched []DecisionEntry
	for _, e := range c.decisions {
		if e.Agent == agent {
			matched = append(matched, e)
		}
	}
	c.logMu.Unlock()
	return tail(matched, limit)
}

// ResetAll resets every agent and clears both logs.
func (c *Coordinator) ResetAll() {
	c.mu.RLock()
	for _, a := range c.agents {
		a.Reset()
	}
	c.mu.RUnlock()

	c.logMu.Lock()
	c.messages = nil
	c.decisions = nil
	c.logMu.Unlock()

	c.log.Info().Msg("All agents reset")
}

// trimMessages drops the oldest messages; callers hold logMu.
func (c *Coordinator) trimMessages() {
	if over := len(c.messages) - c.historyLimit; over > 0 {
		c.messages = append([]domain.Message(nil), c.messages[over:]...)
	}
}

func tail[T any](items []T, limit int) []T {
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]T, limit)
	copy(out, items[len(items)-limit:])
	return out
}
