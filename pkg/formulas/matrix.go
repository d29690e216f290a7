package formulas

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CovarianceMatrix builds the sample covariance of row-major observations
// (rows are periods, columns are assets).
func CovarianceMatrix(rows [][]float64) *mat.SymDense {
	if len(rows) == 0 {
		return mat.NewSymDense(1, nil)
	}
	cols := len(rows[0])
	data := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		data.SetRow(i, row)
	}
	cov := mat.NewSymDense(cols, nil)
	stat.CovarianceMatrix(cov, data, nil)
	return cov
}

// ColumnMeans averages each column of row-major observations.
func ColumnMeans(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	means := make([]float64, len(rows[0]))
	for _, row := range rows {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(len(rows))
	}
	return means
}

// QuadForm returns wᵀ Σ w.
func QuadForm(w []float64, sigma mat.Symmetric) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, sigma, v)
}

// MaxPairwiseCorrelation returns the largest Pearson correlation between any
// two equally long series. Fewer than two usable series yield 0.
func MaxPairwiseCorrelation(series [][]float64) float64 {
	best := 0.0
	found := false
	for i := 0; i < len(series); i++ {
		for j := i + 1; j < len(series); j++ {
			a, b := alignTail(series[i], series[j])
			if len(a) < 2 {
				continue
			}
			c := Correlation(a, b)
			if math.IsNaN(c) {
				continue
			}
			if !found || c > best {
				best = c
				found = true
			}
		}
	}
	return best
}

// alignTail trims two series to their common most recent window.
func alignTail(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[len(a)-n:], b[len(b)-n:]
}
