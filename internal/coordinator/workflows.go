package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/agents/analyst"
	"github.com/aristath/aegis/internal/agents/oracle"
	"github.com/aristath/aegis/internal/agents/sentinel"
	"github.com/aristath/aegis/internal/agents/strategist"
	"github.com/aristath/aegis/internal/domain"
)

// Workflow names.
const (
	WorkflowRegimeDetection = "regime_detection"
	WorkflowTradeValidation = "trade_validation"
	WorkflowFullCycle       = "full_cycle"
	WorkflowRebalanceCycle  = "rebalance_cycle"
)

// MessageRegimeUpdate is the type of the regime broadcast.
const MessageRegimeUpdate = "REGIME_UPDATE"

// Stages of full_cycle that have no agent behind them.
const (
	StageAnalyst    = "analyst"
	StageStrategist = "strategist"
	StageSovereign  = "sovereign"
)

// RegimeOutcome is the regime detection stage.
type RegimeOutcome struct {
	Regime     domain.Regime `json:"regime"`
	Changed    bool          `json:"regime_changed"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
	Notified   int           `json:"notified"`
}

// SignalOutcome is the signal generation stage.
type SignalOutcome struct {
	Signals      []domain.Signal `json:"signals"`
	ClusterNames map[int]string  `json:"cluster_names"`
	Confidence   float64         `json:"confidence"`
	Reasoning    string          `json:"reasoning"`
}

// PlanOutcome is the portfolio construction stage.
type PlanOutcome struct {
	DecisionType domain.DecisionType       `json:"decision_type"`
	Weights      map[string]float64        `json:"optimal_weights,omitempty"`
	Trades       []domain.TradeInstruction `json:"trades,omitempty"`
	Confidence   float64                   `json:"confidence"`
	Reasoning    string                    `json:"reasoning"`
}

// ValidationOutcome is the risk gate stage.
type ValidationOutcome struct {
	Approved     bool                `json:"approved"`
	DecisionType domain.DecisionType `json:"decision_type"`
	VetoReasons  []string            `json:"veto_reasons"`
	RiskMetrics  domain.RiskMetrics  `json:"risk_metrics"`
	Reasoning    string              `json:"reasoning"`
}

// WorkflowResult aggregates the stages a workflow ran. Error is set when a
// stage failed or the workflow is unknown; stages that completed before the
// failure are kept.
type WorkflowResult struct {
	ID          string             `json:"id"`
	Workflow    string             `json:"workflow"`
	Success     bool               `json:"success"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Regime      *RegimeOutcome     `json:"regime_detection,omitempty"`
	Signals     *SignalOutcome     `json:"analyst,omitempty"`
	Plan        *PlanOutcome       `json:"strategist,omitempty"`
	Validation  *ValidationOutcome `json:"risk_validation,omitempty"`
	Pending     []string           `json:"pending_stages,omitempty"`
}

type workflowFunc func(ctx context.Context, res *WorkflowResult, in agents.Input) error

// Workflows lists the workflow names in sorted order.
func (c *Coordinator) Workflows() []string {
	names := make([]string, 0, len(c.workflows))
	for name := range c.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteWorkflow runs a named workflow. It never panics on bad names or
// failed stages; those are reported through the result's Error.
func (c *Coordinator) ExecuteWorkflow(ctx context.Context, name string, in agents.Input) WorkflowResult {
	res := WorkflowResult{
		ID:        uuid.New().String(),
		Workflow:  name,
		StartedAt: c.now(),
	}
	log := c.log.With().Str("workflow", name).Str("workflow_id", res.ID).Logger()

	run, ok := c.workflows[name]
	if !ok {
		log.Error().Msg("Unknown workflow")
		res.Error = fmt.Errorf("%w: %s", domain.ErrUnknownWorkflow, name).Error()
		res.CompletedAt = c.now()
		return res
	}

	log.Info().Msg("Executing workflow")
	if in == nil {
		in = agents.Input{}
	}
	if err := run(ctx, &res, in); err != nil {
		log.Error().Err(err).Msg("Workflow failed")
		res.Error = err.Error()
	} else {
		res.Success = true
	}
	res.CompletedAt = c.now()
	return res
}

// stage runs one agent, turning a failed execution into an error.
func (c *Coordinator) stage(ctx context.Context, agent string, in agents.Input) (*domain.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := c.ExecuteAgent(agent, in)
	if err != nil {
		return nil, fmt.Errorf("%s execution failed: %w", agent, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%s execution failed", agent)
	}
	return d, nil
}

func (c *Coordinator) regimeDetection(ctx context.Context, res *WorkflowResult, in agents.Input) error {
	d, err := c.stage(ctx, oracle.Name, in)
	if err != nil {
		return err
	}
	rec, ok := d.Recommendation.(domain.RegimeRecommendation)
	if !ok {
		return fmt.Errorf("%s returned %s, want %s", oracle.Name, d.Recommendation.Kind(), domain.KindRegime)
	}

	sent := c.broadcast(oracle.Name, MessageRegimeUpdate, map[string]interface{}{
		"regime":               string(rec.Regime),
		"regime_changed":       rec.RegimeChanged,
		"regime_duration_days": rec.RegimeDurationDays,
		"confidence":           d.Confidence,
	}, nil, domain.WithCorrelationID(res.ID), domain.WithPriority(domain.PriorityHigh))

	res.Regime = &RegimeOutcome{
		Regime:     rec.Regime,
		Changed:    rec.RegimeChanged,
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
		Notified:   len(sent),
	}
	return nil
}

func (c *Coordinator) tradeValidation(ctx context.Context, res *WorkflowResult, in agents.Input) error {
	d, err := c.stage(ctx, sentinel.Name, in)
	if err != nil {
		return err
	}
	rec, ok := d.Recommendation.(domain.RiskVerdictRecommendation)
	if !ok {
		return fmt.Errorf("%s returned %s, want %s", sentinel.Name, d.Recommendation.Kind(), domain.KindRiskVerdict)
	}
	res.Validation = &ValidationOutcome{
		Approved:     rec.Approved,
		DecisionType: d.Type,
		VetoReasons:  rec.VetoReasons,
		RiskMetrics:  rec.RiskMetrics,
		Reasoning:    d.Reasoning,
	}
	return nil
}

// fullCycle detects the regime and validates caller-supplied trades. Signal
// generation, portfolio construction and final sign-off are reported as
// pending stages.
func (c *Coordinator) fullCycle(ctx context.Context, res *WorkflowResult, in agents.Input) error {
	if err := c.regimeDetection(ctx, res, in); err != nil {
		return err
	}
	res.Pending = append(res.Pending, StageAnalyst, StageStrategist)

	if in.Has(sentinel.KeyProposedTrades) {
		if err := c.tradeValidation(ctx, res, in); err != nil {
			return err
		}
	}
	res.Pending = append(res.Pending, StageSovereign)
	return nil
}

// rebalanceCycle chains every agent, feeding each stage's output into the
// next. A hold plan ends the cycle without validation.
func (c *Coordinator) rebalanceCycle(ctx context.Context, res *WorkflowResult, in agents.Input) error {
	if err := c.regimeDetection(ctx, res, in); err != nil {
		return err
	}
	regime := string(res.Regime.Regime)

	analystIn := with(in, analyst.KeyCurrentRegime, regime)
	d, err := c.stage(ctx, analyst.Name, analystIn)
	if err != nil {
		return err
	}
	signalSet, ok := d.Recommendation.(domain.SignalSetRecommendation)
	if !ok {
		return fmt.Errorf("%s returned %s, want %s", analyst.Name, d.Recommendation.Kind(), domain.KindSignalSet)
	}
	res.Signals = &SignalOutcome{
		Signals:      signalSet.Signals,
		ClusterNames: signalSet.ClusterNames,
		Confidence:   d.Confidence,
		Reasoning:    d.Reasoning,
	}

	holdings := holdingsOf(in)
	strategistIn := with(in, strategist.KeySignals, signalSet.Signals)
	strategistIn[strategist.KeyCurrentPortfolio] = holdings
	d, err = c.stage(ctx, strategist.Name, strategistIn)
	if err != nil {
		return err
	}
	res.Plan = &PlanOutcome{DecisionType: d.Type, Confidence: d.Confidence, Reasoning: d.Reasoning}
	plan, ok := d.Recommendation.(domain.PortfolioPlanRecommendation)
	if !ok || len(plan.Trades) == 0 {
		return nil
	}
	res.Plan.Weights = plan.OptimalWeights
	res.Plan.Trades = plan.Trades

	sentinelIn := with(in, sentinel.KeyProposedTrades, plan.Trades)
	sentinelIn[sentinel.KeyMarketRegime] = regime
	if !in.Has(sentinel.KeyPortfolioValue) {
		value := strategist.DefaultPortfolioValue
		if v, ok, _ := in.OptionalFloat(strategist.KeyPortfolioValue); ok {
			value = v
		}
		sentinelIn[sentinel.KeyPortfolioValue] = value
	}
	if !in.Has(sentinel.KeyPortfolioPositions) {
		sentinelIn[sentinel.KeyPortfolioPositions] = holdings
	}
	if !in.Has(sentinel.KeyReturnsHistory) {
		history, err := planReturns(in, plan.OptimalWeights)
		if err != nil {
			return err
		}
		sentinelIn[sentinel.KeyReturnsHistory] = history
	}
	return c.tradeValidation(ctx, res, sentinelIn)
}

// broadcast is Broadcast with message options.
func (c *Coordinator) broadcast(sender, msgType string, payload map[string]interface{}, exclude []string, opts ...domain.MessageOption) []domain.Message {
	skip := map[string]bool{sender: true}
	for _, name := range exclude {
		skip[name] = true
	}
	var sent []domain.Message
	for _, name := range c.Names() {
		if skip[name] {
			continue
		}
		msg := domain.NewMessage(sender, name, msgType, payload, opts...)
		if err := c.Send(msg); err == nil {
			sent = append(sent, msg)
		}
	}
	return sent
}

// with copies the input and sets one key.
func with(in agents.Input, key string, value interface{}) agents.Input {
	out := make(agents.Input, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	out[key] = value
	return out
}

// holdingsOf reads current holdings from either portfolio key.
func holdingsOf(in agents.Input) map[string]domain.Position {
	for _, key := range []string{strategist.KeyCurrentPortfolio, sentinel.KeyPortfolioPositions} {
		if in.Has(key) {
			if pos, err := in.Positions(key); err == nil {
				return pos
			}
		}
	}
	return map[string]domain.Position{}
}

// planReturns is the historical return series of the planned portfolio over
// the rows where every planned symbol has data.
func planReturns(in agents.Input, weights map[string]float64) ([]float64, error) {
	frame, err := in.Frame(strategist.KeyReturns)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(weights))
	for s := range weights {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	rows, err := frame.Subset(symbols)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			return []float64{}, nil
		}
		return nil, err
	}
	if len(rows) == 0 {
		return []float64{}, nil
	}

	data := make([]float64, 0, len(rows)*len(symbols))
	for _, r := range rows {
		data = append(data, r...)
	}
	w := make([]float64, len(symbols))
	for i, s := range symbols {
		w[i] = weights[s]
	}

	var out mat.VecDense
	out.MulVec(mat.NewDense(len(rows), len(symbols), data), mat.NewVecDense(len(w), w))
	return out.RawVector().Data, nil
}
