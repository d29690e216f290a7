// Package clustering groups assets by their risk/return profile with
// standardized k-means.
package clustering

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/aegis/internal/domain"
)

// Config controls the clustering model.
type Config struct {
	NClusters       int
	NInit           int
	MaxIterations   int
	Seed            uint64
	MinObservations int
	UsePCA          bool
	PCAComponents   int
}

// DefaultConfig returns five clusters, ten restarts and seed 42.
func DefaultConfig() Config {
	return Config{
		NClusters:       5,
		NInit:           10,
		MaxIterations:   300,
		Seed:            42,
		MinObservations: DefaultMinObservations,
		PCAComponents:   3,
	}
}

// Clusterer is a fitted-or-not k-means model over asset features.
type Clusterer struct {
	cfg Config
	log zerolog.Logger

	mu       sync.RWMutex
	fitted   bool
	features []AssetFeatures
	labels   []int
	centers  [][]float64
	inertia  float64
	scaler   scaler
	pca      *projection
}

// New creates an unfitted clusterer.
func New(cfg Config, log zerolog.Logger) *Clusterer {
	def := DefaultConfig()
	if cfg.NClusters <= 0 {
		cfg.NClusters = def.NClusters
	}
	if cfg.NInit <= 0 {
		cfg.NInit = def.NInit
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = def.MinObservations
	}
	if cfg.PCAComponents <= 0 {
		cfg.PCAComponents = def.PCAComponents
	}
	return &Clusterer{
		cfg: cfg,
		log: log.With().Str("component", "asset_clusterer").Logger(),
	}
}

// NClusters returns the configured cluster count.
func (c *Clusterer) NClusters() int {
	return c.cfg.NClusters
}

// Fitted reports whether the last Fit succeeded.
func (c *Clusterer) Fitted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fitted
}

// Fit extracts features, standardizes them, optionally projects them onto
// their principal components and runs k-means. With fewer usable assets than
// clusters it returns ErrInsufficientData and the model is left unfitted.
func (c *Clusterer) Fit(frame *domain.ReturnFrame, market []float64) error {
	features := ExtractFeatures(frame, market, c.cfg.MinObservations, c.log)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(features) < c.cfg.NClusters {
		c.reset()
		c.log.Error().
			Int("assets", len(features)).
			Int("clusters", c.cfg.NClusters).
			Msg("Insufficient assets for clustering")
		return fmt.Errorf("%d usable assets for %d clusters: %w", len(features), c.cfg.NClusters, domain.ErrInsufficientData)
	}

	raw := make([][]float64, len(features))
	for i, f := range features {
		raw[i] = f.Vector()
	}
	sc := fitScaler(raw)
	points := sc.transform(raw)

	var proj *projection
	if c.cfg.UsePCA {
		p, ok := fitProjection(points, c.cfg.PCAComponents)
		if ok {
			proj = p
			points = proj.transform(points)
			c.log.Info().Float64("explained_variance", proj.explained).Msg("PCA applied")
		} else {
			c.log.Warn().Msg("PCA failed, clustering on standardized features")
		}
	}

	rng := rand.New(rand.NewPCG(c.cfg.Seed, c.cfg.Seed))
	res := kmeans(points, c.cfg.NClusters, c.cfg.NInit, c.cfg.MaxIterations, rng)

	c.fitted = true
	c.features = features
	c.labels = res.labels
	c.centers = res.centers
	c.inertia = res.inertia
	c.scaler = sc
	c.pca = proj

	c.log.Info().Float64("inertia", res.inertia).Int("assets", len(features)).Msg("Clustering complete")
	return nil
}

func (c *Clusterer) reset() {
	c.fitted = false
	c.features = nil
	c.labels = nil
	c.centers = nil
	c.inertia = 0
	c.pca = nil
}

// Reset discards the fitted model.
func (c *Clusterer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// Assignments maps each requested symbol that took part in the fit to its
// cluster. Symbols skipped during fitting are absent from the result.
func (c *Clusterer) Assignments(symbols []string) (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.fitted {
		return nil, domain.ErrUnfittedModel
	}

	bySymbol := make(map[string]int, len(c.features))
	for i, f := range c.features {
		bySymbol[f.Symbol] = c.labels[i]
	}
	out := make(map[string]int, len(symbols))
	for _, s := range symbols {
		if label, ok := bySymbol[s]; ok {
			out[s] = label
		}
	}
	return out, nil
}

// Members lists the fitted symbols in a cluster, sorted.
func (c *Clusterer) Members(clusterID int) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.fitted {
		return nil, domain.ErrUnfittedModel
	}

	var out []string
	for i, f := range c.features {
		if c.labels[i] == clusterID {
			out = append(out, f.Symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Features returns the profiles used in the last fit.
func (c *Clusterer) Features() ([]AssetFeatures, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.fitted {
		return nil, domain.ErrUnfittedModel
	}
	return append([]AssetFeatures(nil), c.features...), nil
}

// Characteristics averages mean return, volatility, Sharpe and beta over the
// members of each non-empty cluster.
func (c *Clusterer) Characteristics() (map[int]domain.ClusterStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.fitted {
		return nil, domain.ErrUnfittedModel
	}

	out := make(map[int]domain.ClusterStats, c.cfg.NClusters)
	for i, f := range c.features {
		s := out[c.labels[i]]
		s.MeanReturn += f.MeanReturn
		s.Volatility += f.Volatility
		s.Sharpe += f.Sharpe
		s.Beta += f.Beta
		s.Count++
		out[c.labels[i]] = s
	}
	for id, s := range out {
		n := float64(s.Count)
		s.MeanReturn /= n
		s.Volatility /= n
		s.Sharpe /= n
		s.Beta /= n
		out[id] = s
	}
	return out, nil
}

// Names labels every non-empty cluster from its characteristics.
func (c *Clusterer) Names() (map[int]string, error) {
	chars, err := c.Characteristics()
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, len(chars))
	for id, s := range chars {
		out[id] = NameCluster(s)
	}
	return out, nil
}

// NameCluster gives a descriptive label; the first matching rule wins.
func NameCluster(s domain.ClusterStats) string {
	switch {
	case s.Sharpe > 1.5 && s.Volatility < 0.02:
		return "Low-Vol Winners"
	case s.Sharpe > 1.0:
		return "High Performers"
	case s.Beta > 1.5:
		return "High-Beta Growth"
	case s.Beta < 0.5:
		return "Defensive"
	case s.Volatility > 0.03:
		return "High Volatility"
	default:
		return "Moderate"
	}
}

// Inertia is the within-cluster sum of squares of the fitted model.
func (c *Clusterer) Inertia() (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.fitted {
		return 0, domain.ErrUnfittedModel
	}
	return c.inertia, nil
}

// Predict assigns the assets of a new frame to the fitted clusters.
func (c *Clusterer) Predict(frame *domain.ReturnFrame, market []float64) (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.fitted {
		return nil, domain.ErrUnfittedModel
	}

	features := ExtractFeatures(frame, market, c.cfg.MinObservations, c.log)
	raw := make([][]float64, len(features))
	for i, f := range features {
		raw[i] = f.Vector()
	}
	points := c.scaler.transform(raw)
	if c.pca != nil {
		points = c.pca.transform(points)
	}

	out := make(map[string]int, len(features))
	for i, f := range features {
		out[f.Symbol] = nearest(points[i], c.centers)
	}
	return out, nil
}

// scaler standardizes columns to zero mean and unit population variance.
type scaler struct {
	mean []float64
	std  []float64
}

func fitScaler(rows [][]float64) scaler {
	dim := len(rows[0])
	sc := scaler{mean: make([]float64, dim), std: make([]float64, dim)}
	col := make([]float64, len(rows))
	for j := 0; j < dim; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		m, v := stat.PopMeanVariance(col, nil)
		sc.mean[j] = m
		sc.std[j] = math.Sqrt(v)
		if sc.std[j] == 0 || math.IsNaN(sc.std[j]) {
			sc.std[j] = 1
		}
	}
	return sc
}

func (s scaler) transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, len(r))
		for j, v := range r {
			out[i][j] = (v - s.mean[j]) / s.std[j]
		}
	}
	return out
}

// projection maps standardized features onto leading principal components.
type projection struct {
	mean      []float64
	vectors   *mat.Dense
	explained float64
}

func fitProjection(points [][]float64, components int) (*projection, bool) {
	n, dim := len(points), len(points[0])
	data := mat.NewDense(n, dim, nil)
	for i, p := range points {
		data.SetRow(i, p)
	}

	var pc stat.PC
	if !pc.PrincipalComponents(data, nil) {
		return nil, false
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	_, available := vecs.Dims()
	if components > available {
		components = available
	}
	total, kept := 0.0, 0.0
	for i, v := range vars {
		total += v
		if i < components {
			kept += v
		}
	}
	explained := 0.0
	if total > 0 {
		explained = kept / total
	}

	mean := make([]float64, dim)
	for _, p := range points {
		for j, v := range p {
			mean[j] += v / float64(n)
		}
	}

	leading := mat.DenseCopyOf(vecs.Slice(0, dim, 0, components))
	return &projection{mean: mean, vectors: leading, explained: explained}, true
}

func (p *projection) transform(points [][]float64) [][]float64 {
	if len(points) == 0 {
		return nil
	}
	dim := len(points[0])
	centered := mat.NewDense(len(points), dim, nil)
	for i, row := range points {
		for j, v := range row {
			centered.Set(i, j, v-p.mean[j])
		}
	}
	var out mat.Dense
	out.Mul(centered, p.vectors)

	rows, _ := out.Dims()
	res := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		res[i] = mat.Row(nil, i, &out)
	}
	return res
}
