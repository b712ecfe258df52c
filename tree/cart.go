// Package tree implements CART decision trees and random forests, the
// tree-based experts of the ensemble.
package tree

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
)

type criterion int

const (
	criterionMSE criterion = iota
	criterionGini
)

// config carries the growing parameters shared by single trees and
// forests. Zero values select the estimator defaults.
type config struct {
	nEstimators     int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 selects the per-estimator default
	seed            uint64
}

// Option configures a tree-based estimator.
type Option func(*config)

// WithTrees sets the number of trees in a forest.
func WithTrees(n int) Option {
	return func(c *config) {
		c.nEstimators = n
	}
}

// WithMaxDepth caps the depth of each tree.
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		c.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum node size eligible for splitting.
func WithMinSamplesSplit(n int) Option {
	return func(c *config) {
		c.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples per leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(c *config) {
		c.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets how many features each split considers.
func WithMaxFeatures(n int) Option {
	return func(c *config) {
		c.maxFeatures = n
	}
}

// WithSeed fixes the random seed for bootstrapping and feature subsampling.
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// node is one vertex of a grown tree. Internal nodes route rows by a
// threshold test; leaves carry the prediction.
type node struct {
	left      *node
	right     *node
	feature   int
	threshold float64

	leaf   bool
	value  float64   // mean target (regression) or majority class index
	counts []float64 // class histogram, classification only
}

// cart is a single grown tree together with its split bookkeeping.
type cart struct {
	root        *node
	importances []float64
	nFeatures   int
	nTotal      float64

	crit            criterion
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	nClasses        int
	rng             *rand.Rand
}

func newCART(cfg config, crit criterion, nClasses int, rng *rand.Rand) *cart {
	t := &cart{
		crit:            crit,
		maxDepth:        cfg.maxDepth,
		minSamplesSplit: cfg.minSamplesSplit,
		minSamplesLeaf:  cfg.minSamplesLeaf,
		maxFeatures:     cfg.maxFeatures,
		nClasses:        nClasses,
		rng:             rng,
	}
	if t.maxDepth <= 0 {
		t.maxDepth = 10
	}
	if t.minSamplesSplit < 2 {
		t.minSamplesSplit = 2
	}
	if t.minSamplesLeaf < 1 {
		t.minSamplesLeaf = 1
	}
	return t
}

// grow fits the tree on the rows of X selected by indices.
func (t *cart) grow(X mat.Matrix, y []float64, indices []int) {
	_, cols := X.Dims()
	t.nFeatures = cols
	t.importances = make([]float64, cols)
	t.nTotal = float64(len(indices))
	t.root = t.growNode(X, y, indices, 0)
}

func (t *cart) growNode(X mat.Matrix, y []float64, indices []int, depth int) *node {
	n := t.makeLeaf(y, indices)
	impurity := t.impurity(y, indices)

	if depth >= t.maxDepth || len(indices) < t.minSamplesSplit || impurity == 0 {
		return n
	}

	feature, threshold, gain := t.bestSplit(X, y, indices, impurity)
	if gain <= 0 {
		return n
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, idx := range indices {
		if X.At(idx, feature) <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) < t.minSamplesLeaf || len(right) < t.minSamplesLeaf {
		return n
	}

	t.importances[feature] += float64(len(indices)) / t.nTotal * gain

	n.leaf = false
	n.feature = feature
	n.threshold = threshold
	n.left = t.growNode(X, y, left, depth+1)
	n.right = t.growNode(X, y, right, depth+1)
	return n
}

func (t *cart) makeLeaf(y []float64, indices []int) *node {
	n := &node{leaf: true}
	if t.crit == criterionMSE {
		sum := 0.0
		for _, idx := range indices {
			sum += y[idx]
		}
		n.value = sum / float64(len(indices))
		return n
	}

	n.counts = make([]float64, t.nClasses)
	for _, idx := range indices {
		n.counts[int(y[idx])]++
	}
	best := 0
	for c := 1; c < t.nClasses; c++ {
		if n.counts[c] > n.counts[best] {
			best = c
		}
	}
	n.value = float64(best)
	return n
}

func (t *cart) impurity(y []float64, indices []int) float64 {
	if t.crit == criterionMSE {
		sum, sumSq := 0.0, 0.0
		for _, idx := range indices {
			sum += y[idx]
			sumSq += y[idx] * y[idx]
		}
		n := float64(len(indices))
		mean := sum / n
		variance := sumSq/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		return variance
	}

	counts := make([]float64, t.nClasses)
	for _, idx := range indices {
		counts[int(y[idx])]++
	}
	return giniFromCounts(counts, float64(len(indices)))
}

func giniFromCounts(counts []float64, n float64) float64 {
	gini := 1.0
	for _, c := range counts {
		p := c / n
		gini -= p * p
	}
	return gini
}

// bestSplit scans every candidate feature with a single sorted pass,
// maintaining running statistics on the left partition.
func (t *cart) bestSplit(X mat.Matrix, y []float64, indices []int, parentImpurity float64) (feature int, threshold, gain float64) {
	feature = -1
	gain = 0

	features := t.candidateFeatures()
	n := len(indices)
	order := make([]int, n)

	for _, f := range features {
		copy(order, indices)
		sort.Slice(order, func(a, b int) bool {
			return X.At(order[a], f) < X.At(order[b], f)
		})

		if t.crit == criterionMSE {
			totalSum, totalSq := 0.0, 0.0
			for _, idx := range order {
				totalSum += y[idx]
				totalSq += y[idx] * y[idx]
			}
			leftSum, leftSq := 0.0, 0.0
			for i := 0; i < n-1; i++ {
				v := y[order[i]]
				leftSum += v
				leftSq += v * v
				cur, next := X.At(order[i], f), X.At(order[i+1], f)
				if cur == next {
					continue
				}
				nL, nR := float64(i+1), float64(n-i-1)
				if int(nL) < t.minSamplesLeaf || int(nR) < t.minSamplesLeaf {
					continue
				}
				impL := varianceFromSums(leftSum, leftSq, nL)
				impR := varianceFromSums(totalSum-leftSum, totalSq-leftSq, nR)
				g := parentImpurity - (nL*impL+nR*impR)/float64(n)
				if g > gain {
					gain = g
					feature = f
					threshold = (cur + next) / 2
				}
			}
			continue
		}

		totalCounts := make([]float64, t.nClasses)
		for _, idx := range order {
			totalCounts[int(y[idx])]++
		}
		leftCounts := make([]float64, t.nClasses)
		rightCounts := make([]float64, t.nClasses)
		for i := 0; i < n-1; i++ {
			leftCounts[int(y[order[i]])]++
			cur, next := X.At(order[i], f), X.At(order[i+1], f)
			if cur == next {
				continue
			}
			nL, nR := float64(i+1), float64(n-i-1)
			if int(nL) < t.minSamplesLeaf || int(nR) < t.minSamplesLeaf {
				continue
			}
			for c := range rightCounts {
				rightCounts[c] = totalCounts[c] - leftCounts[c]
			}
			impL := giniFromCounts(leftCounts, nL)
			impR := giniFromCounts(rightCounts, nR)
			g := parentImpurity - (nL*impL+nR*impR)/float64(n)
			if g > gain {
				gain = g
				feature = f
				threshold = (cur + next) / 2
			}
		}
	}
	return feature, threshold, gain
}

func varianceFromSums(sum, sumSq, n float64) float64 {
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		return 0
	}
	return variance
}

func (t *cart) candidateFeatures() []int {
	k := t.maxFeatures
	if k <= 0 || k >= t.nFeatures {
		features := make([]int, t.nFeatures)
		for i := range features {
			features[i] = i
		}
		return features
	}
	perm := t.rng.Perm(t.nFeatures)
	return perm[:k]
}

func (t *cart) predictRow(X mat.Matrix, row int) float64 {
	n := t.root
	for !n.leaf {
		if X.At(row, n.feature) <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// predictCounts walks a row to its leaf and returns the normalized class
// histogram there. Classification trees only.
func (t *cart) predictCounts(X mat.Matrix, row int) []float64 {
	n := t.root
	for !n.leaf {
		if X.At(row, n.feature) <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	proba := make([]float64, len(n.counts))
	total := 0.0
	for _, c := range n.counts {
		total += c
	}
	if total == 0 {
		return proba
	}
	for i, c := range n.counts {
		proba[i] = c / total
	}
	return proba
}

// normalizeImportances rescales an importance vector to sum to 1,
// zero-filling when the accumulated gains are degenerate.
func normalizeImportances(importances []float64) []float64 {
	total := 0.0
	for _, v := range importances {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return make([]float64, len(importances))
		}
		total += v
	}
	if total == 0 {
		return importances
	}
	out := make([]float64, len(importances))
	for i, v := range importances {
		out[i] = v / total
	}
	return out
}
