package clustering

import (
	"math"
	"math/rand/v2"
)

// kmeansResult is one Lloyd run.
type kmeansResult struct {
	labels  []int
	centers [][]float64
	inertia float64
}

// kmeans runs nInit k-means++ seeded Lloyd iterations and keeps the run with
// the lowest inertia. The generator makes results reproducible for a seed.
func kmeans(points [][]float64, k, nInit, maxIter int, rng *rand.Rand) kmeansResult {
	best := kmeansResult{inertia: math.Inf(1)}
	for run := 0; run < nInit; run++ {
		res := lloyd(points, seedCenters(points, k, rng), maxIter)
		if res.inertia < best.inertia {
			best = res
		}
	}
	return best
}

// seedCenters picks k starting centers with the k-means++ rule.
func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centers) < k {
		total := 0.0
		for i, p := range points {
			dist[i] = nearestDistance(p, centers)
			total += dist[i]
		}
		if total == 0 {
			centers = append(centers, clone(points[rng.IntN(len(points))]))
			continue
		}
		target := rng.Float64() * total
		chosen := len(points) - 1
		acc := 0.0
		for i, d := range dist {
			acc += d
			if acc >= target {
				chosen = i
				break
			}
		}
		centers = append(centers, clone(points[chosen]))
	}
	return centers
}

func lloyd(points [][]float64, centers [][]float64, maxIter int) kmeansResult {
	k := len(centers)
	dim := len(points[0])
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			if c := nearest(p, centers); c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			c := labels[i]
			counts[c]++
			for j, v := range p {
				sums[c][j] += v
			}
		}
		for c := range centers {
			if counts[c] == 0 {
				// Re-seed an empty cluster with the point farthest from its center.
				far := farthest(points, labels, centers)
				centers[c] = clone(points[far])
				labels[far] = c
				continue
			}
			for j := range sums[c] {
				centers[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}

	inertia := 0.0
	for i, p := range points {
		inertia += sqDist(p, centers[labels[i]])
	}
	return kmeansResult{labels: labels, centers: centers, inertia: inertia}
}

func nearest(p []float64, centers [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := sqDist(p, center); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func nearestDistance(p []float64, centers [][]float64) float64 {
	best := math.Inf(1)
	for _, c := range centers {
		if d := sqDist(p, c); d < best {
			best = d
		}
	}
	return best
}

func farthest(points [][]float64, labels []int, centers [][]float64) int {
	idx, worst := 0, -1.0
	for i, p := range points {
		if d := sqDist(p, centers[labels[i]]); d > worst {
			idx, worst = i, d
		}
	}
	return idx
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
