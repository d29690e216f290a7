// Package optimization solves long-only, fully invested weight allocation
// problems with box bounds.
package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/aegis/internal/domain"
	"github.com/aristath/aegis/pkg/formulas"
)

// Method selects the allocation objective.
type Method string

const (
	MethodMeanVariance Method = "mean_variance"
	MethodRiskParity   Method = "risk_parity"
	MethodEqualWeight  Method = "equal_weight"
)

// ParseMethod maps a name to a Method. Unrecognized names fall back to
// equal weighting.
func ParseMethod(name string) Method {
	switch Method(name) {
	case MethodMeanVariance, MethodRiskParity:
		return Method(name)
	default:
		return MethodEqualWeight
	}
}

// DefaultStrength scales expected returns when an asset carries no signal.
const DefaultStrength = 0.5

// Config holds the optimizer bounds and iteration cap.
type Config struct {
	Method        Method
	MinWeight     float64
	MaxWeight     float64
	MaxIterations int
}

// DefaultConfig returns mean-variance with 1%..20% bounds and 1000 iterations.
func DefaultConfig() Config {
	return Config{
		Method:        MethodMeanVariance,
		MinWeight:     0.01,
		MaxWeight:     0.20,
		MaxIterations: 1000,
	}
}

// Result is an allocation over the input columns.
type Result struct {
	Weights   []float64
	Converged bool
	Status    string
}

// Optimizer allocates weights over a set of assets.
type Optimizer struct {
	cfg Config
	log zerolog.Logger
}

// NewOptimizer creates an optimizer; a non-positive iteration cap is replaced
// by the default.
func NewOptimizer(cfg Config, log zerolog.Logger) *Optimizer {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("component", "portfolio_optimizer").Logger(),
	}
}

// Method returns the configured objective.
func (o *Optimizer) Method() Method {
	return o.cfg.Method
}

// Bounds returns the per-asset bounds actually enforced for n assets. When
// the configured box cannot hold a fully invested portfolio the bound is
// widened to the equal weight 1/n.
func (o *Optimizer) Bounds(n int) (lo, hi float64) {
	lo, hi = o.cfg.MinWeight, o.cfg.MaxWeight
	if n <= 0 {
		return lo, hi
	}
	eq := 1.0 / float64(n)
	if lo > eq {
		lo = eq
	}
	if hi < eq {
		hi = eq
	}
	return lo, hi
}

// Optimize allocates over the columns of rows (periods x assets). strengths
// scales expected returns for mean-variance and may be nil. When neither
// solver converges the result is equal weights with Converged false.
func (o *Optimizer) Optimize(rows [][]float64, strengths []float64) (Result, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Result{}, fmt.Errorf("empty return matrix: %w", domain.ErrInsufficientData)
	}
	n := len(rows[0])
	lo, hi := o.Bounds(n)

	switch o.cfg.Method {
	case MethodMeanVariance:
		mu := formulas.ColumnMeans(rows)
		for i := range mu {
			s := DefaultStrength
			if strengths != nil {
				s = strengths[i]
			}
			mu[i] *= 1 + s
		}
		return o.solve(meanVarianceObjective(mu, formulas.CovarianceMatrix(rows)), n, lo, hi), nil
	case MethodRiskParity:
		return o.solve(riskParityObjective(formulas.CovarianceMatrix(rows)), n, lo, hi), nil
	default:
		return Result{Weights: equalWeights(n), Converged: true, Status: "EqualWeight"}, nil
	}
}

// solve minimizes f over the bounded simplex. Nelder-Mead runs first on an
// unconstrained parameterization that is projected before evaluation; when
// it does not converge, BFGS retries on a smooth softmax parameterization
// with a penalty on the upper bound. Only when both fail are equal weights
// returned.
func (o *Optimizer) solve(f func(w []float64) float64, n int, lo, hi float64) Result {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return f(ProjectCappedSimplex(x, lo, hi))
		},
	}
	settings := &optimize.Settings{
		MajorIterations: o.cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 100,
		},
	}

	result, err := optimize.Minimize(problem, equalWeights(n), settings, &optimize.NelderMead{})
	if err == nil && converged(result.Status) {
		return Result{
			Weights:   ProjectCappedSimplex(result.X, lo, hi),
			Converged: true,
			Status:    result.Status.String(),
		}
	}
	o.log.Debug().Err(err).Str("status", statusOf(result)).Int("assets", n).
		Msg("Nelder-Mead did not converge, retrying with BFGS")

	if w, status, ok := o.solveGradient(f, n, lo, hi); ok {
		return Result{Weights: w, Converged: true, Status: status}
	}

	o.log.Warn().Err(err).Str("status", statusOf(result)).Str("method", string(o.cfg.Method)).
		Msg("Optimization failed, using equal weights")
	return Result{Weights: ProjectCappedSimplex(equalWeights(n), lo, hi), Status: statusOf(result)}
}

const (
	// boundPenalty weighs squared upper-bound violations in the BFGS objective.
	boundPenalty = 1e3
	// stationaryTolerance accepts a BFGS point whose line search gave up at
	// a numerically flat spot.
	stationaryTolerance = 1e-5
)

// solveGradient minimizes f with BFGS over w = lo + (1-n*lo)*softmax(x),
// which satisfies the lower bounds and full investment by construction.
// Gradients come from central finite differences.
func (o *Optimizer) solveGradient(f func(w []float64) float64, n int, lo, hi float64) ([]float64, string, bool) {
	scale := 1 - float64(n)*lo
	objective := func(x []float64) float64 {
		w := softmaxWeights(x, lo, scale)
		penalty := 0.0
		for _, v := range w {
			if v > hi {
				penalty += (v - hi) * (v - hi)
			}
		}
		return f(w) + boundPenalty*penalty
	}
	fdSettings := &fd.Settings{Formula: fd.Central}

	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, objective, x, fdSettings)
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   o.cfg.MaxIterations,
		GradientThreshold: 1e-8,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 20,
		},
	}

	result, err := optimize.Minimize(problem, make([]float64, n), settings, &optimize.BFGS{})
	if result == nil {
		o.log.Warn().Err(err).Msg("BFGS failed")
		return nil, "", false
	}

	status := result.Status.String()
	ok := err == nil && converged(result.Status)
	if !ok && result.Status != optimize.IterationLimit && result.Status != optimize.FunctionEvaluationLimit {
		grad := fd.Gradient(nil, objective, result.X, fdSettings)
		ok = floats.Norm(grad, math.Inf(1)) <= stationaryTolerance
	}
	if !ok {
		o.log.Warn().Err(err).Str("status", status).Msg("BFGS did not converge")
		return nil, status, false
	}
	return ProjectCappedSimplex(softmaxWeights(result.X, lo, scale), lo, hi), status, true
}

// softmaxWeights maps x onto the simplex shifted by lo.
func softmaxWeights(x []float64, lo, scale float64) []float64 {
	maxX := math.Inf(-1)
	for _, v := range x {
		maxX = math.Max(maxX, v)
	}
	w := make([]float64, len(x))
	sum := 0.0
	for i, v := range x {
		w[i] = math.Exp(v - maxX)
		sum += w[i]
	}
	for i := range w {
		w[i] = lo + scale*w[i]/sum
	}
	return w
}

func statusOf(r *optimize.Result) string {
	if r == nil {
		return "error"
	}
	return r.Status.String()
}

func converged(s optimize.Status) bool {
	return s == optimize.Success || s == optimize.FunctionConvergence || s == optimize.GradientThreshold
}

// meanVarianceObjective is the negative Sharpe-like ratio wᵀμ / sqrt(wᵀΣw).
func meanVarianceObjective(mu []float64, sigma *mat.SymDense) func([]float64) float64 {
	return func(w []float64) float64 {
		ret := 0.0
		for i, m := range mu {
			ret += w[i] * m
		}
		vol := math.Sqrt(math.Max(formulas.QuadForm(w, sigma), 0))
		if vol <= 0 {
			return 0
		}
		return -ret / vol
	}
}

// riskParityObjective is the squared distance of each risk contribution from
// the equal share vol/n.
func riskParityObjective(sigma *mat.SymDense) func([]float64) float64 {
	return func(w []float64) float64 {
		n := len(w)
		wv := mat.NewVecDense(n, w)
		var sw mat.VecDense
		sw.MulVec(sigma, wv)
		vol := math.Sqrt(math.Max(mat.Dot(wv, &sw), 0))
		if vol <= 0 {
			return 0
		}
		target := vol / float64(n)
		total := 0.0
		for i := 0; i < n; i++ {
			d := w[i]*sw.AtVec(i)/vol - target
			total += d * d
		}
		return total
	}
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// PortfolioStats returns annualized expected return and volatility of w.
func PortfolioStats(rows [][]float64, w []float64) (ret, vol float64) {
	mu := formulas.ColumnMeans(rows)
	for i, m := range mu {
		ret += w[i] * m
	}
	variance := formulas.QuadForm(w, formulas.CovarianceMatrix(rows))
	return formulas.AnnualizedReturn(ret), formulas.AnnualizedVolatility(math.Sqrt(math.Max(variance, 0)))
}
