// Package agents holds the lifecycle shared by every decision agent.
package agents

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/domain"
)

// DefaultHistoryLimit bounds the per-agent decision history.
const DefaultHistoryLimit = 1000

// Processor is the agent-specific half of an execution.
type Processor interface {
	ValidateInput(in Input) error
	Process(in Input) (*domain.Decision, error)
}

// StateResetter is implemented by processors that keep derived state which
// must be cleared on Reset.
type StateResetter interface {
	ResetState()
}

// Agent is what the coordinator drives.
type Agent interface {
	Name() string
	Execute(in Input) *domain.Decision
	SendMessage(recipient, msgType string, payload map[string]interface{}, opts ...domain.MessageOption) domain.Message
	ReceiveMessage(msg domain.Message)
	QueuedMessages() []domain.Message
	Status() domain.AgentSnapshot
	RecentDecisions(limit int) []*domain.Decision
	Reset()
}

// Base implements Agent around a Processor. Executions are serialized; the
// bookkeeping fields can be read concurrently while one is running.
type Base struct {
	name string
	proc Processor
	log  zerolog.Logger
	now  func() time.Time

	runMu sync.Mutex

	mu            sync.RWMutex
	status        domain.AgentStatus
	errorCount    int
	lastExecution *time.Time
	queue         []domain.Message
	history       []*domain.Decision
	historyLimit  int
}

// NewBase wires a processor into the shared lifecycle.
func NewBase(name string, proc Processor, log zerolog.Logger) *Base {
	return &Base{
		name:         name,
		proc:         proc,
		log:          log.With().Str("agent", name).Logger(),
		now:          time.Now,
		status:       domain.StatusIdle,
		historyLimit: DefaultHistoryLimit,
	}
}

// SetClock replaces the time source.
func (b *Base) SetClock(now func() time.Time) {
	b.now = now
}

// SetHistoryLimit changes the decision history bound; values below 1 are ignored.
func (b *Base) SetHistoryLimit(n int) {
	if n < 1 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.historyLimit = n
	b.trimHistory()
}

// Name returns the agent name
func (b *Base) Name() string {
	return b.name
}

// Logger returns the agent's component logger.
func (b *Base) Logger() zerolog.Logger {
	return b.log
}

// Now returns the current time from the agent's clock.
func (b *Base) Now() time.Time {
	return b.now()
}

// Execute runs validate then process and records the decision, stamped with
// the agent clock. Failures of any kind never escape: they yield nil, status error and a bumped error count.
func (b *Base) Execute(in Input) (decision *domain.Decision) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.mu.Lock()
	if b.status == domain.StatusDisabled {
		b.mu.Unlock()
		b.log.Warn().Msg("Execution skipped, agent disabled")
		return nil
	}
	b.status = domain.StatusProcessing
	b.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			b.fail(fmt.Errorf("panic: %v", r))
			decision = nil
		}
	}()

	if err := b.proc.ValidateInput(in); err != nil {
		b.fail(err)
		return nil
	}

	d, err := b.proc.Process(in)
	if err != nil {
		b.fail(err)
		return nil
	}

	b.mu.Lock()
	now := b.now()
	b.lastExecution = &now
	if d != nil {
		d.Timestamp = now
		b.history = append(b.history, d)
		b.trimHistory()
	}
	b.status = domain.StatusIdle
	b.mu.Unlock()

	if d != nil {
		b.log.Info().
			Str("decision_type", string(d.Type)).
			Float64("confidence", d.Confidence).
			Msg("Decision made")
	}
	return d
}

func (b *Base) fail(err error) {
	b.mu.Lock()
	b.status = domain.StatusError
	b.errorCount++
	count := b.errorCount
	b.mu.Unlock()

	b.log.Error().Err(err).Int("error_count", count).Msg("Execution failed")
}

// trimHistory evicts the oldest decisions; callers hold mu.
func (b *Base) trimHistory() {
	if over := len(b.history) - b.historyLimit; over > 0 {
		b.history = append([]*domain.Decision(nil), b.history[over:]...)
	}
}

// SendMessage builds an outbound message from this agent. Delivery is up to
// the caller.
func (b *Base) SendMessage(recipient, msgType string, payload map[string]interface{}, opts ...domain.MessageOption) domain.Message {
	msg := domain.NewMessage(b.name, recipient, msgType, payload, opts...)
	b.log.Debug().Str("recipient", recipient).Str("message_type", msgType).Msg("Sending message")
	return msg
}

// ReceiveMessage appends to the inbound queue.
func (b *Base) ReceiveMessage(msg domain.Message) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	b.log.Debug().Str("sender", msg.Sender).Str("message_type", msg.Type).Msg("Received message")
}

// QueuedMessages returns a copy of the inbound queue.
func (b *Base) QueuedMessages() []domain.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]domain.Message(nil), b.queue...)
}

// Status returns a snapshot of the agent state.
func (b *Base) Status() domain.AgentSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var last *time.Time
	if b.lastExecution != nil {
		t := *b.lastExecution
		last = &t
	}
	return domain.AgentSnapshot{
		Name:          b.name,
		Status:        b.status,
		ErrorCount:    b.errorCount,
		LastExecution: last,
		DecisionCount: len(b.history),
		QueueSize:     len(b.queue),
	}
}

// RecentDecisions returns up to limit of the newest decisions, oldest first.
// A non-positive limit returns the whole history.
func (b *Base) RecentDecisions(limit int) []*domain.Decision {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if limit > 0 && limit < len(b.history) {
		start = len(b.history) - limit
	}
	return append([]*domain.Decision(nil), b.history[start:]...)
}

// Reset returns the agent to idle, clears the error count, the inbound queue
// and any processor state. Decision history is kept.
func (b *Base) Reset() {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.mu.Lock()
	b.status = domain.StatusIdle
	b.errorCount = 0
	b.queue = nil
	b.mu.Unlock()

	if r, ok := b.proc.(StateResetter); ok {
		r.ResetState()
	}
	b.log.Info().Msg("Agent reset")
}

// Disable makes Execute a no-op until Enable is called.
func (b *Base) Disable() {
	b.mu.Lock()
	b.status = domain.StatusDisabled
	b.mu.Unlock()
}

// Enable returns a disabled agent to idle.
func (b *Base) Enable() {
	b.mu.Lock()
	if b.status == domain.StatusDisabled {
		b.status = domain.StatusIdle
	}
	b.mu.Unlock()
}
