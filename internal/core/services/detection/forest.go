package detection

import (
	"math"
	"math/rand"
)

// Isolation forest over two-dimensional feature points. Outliers isolate in
// few random splits, so short average path lengths mean anomalous. The pack's
// detectors are hand-rolled statistics; this follows that tradition rather
// than pulling in an ML framework.

const (
	numTrees      = 100
	subsampleSize = 256
	// outlierThreshold on the normalized anomaly score in (0,1). Points above
	// isolate markedly faster than average.
	outlierThreshold = 0.6
)

type point [2]float64

type forestNode struct {
	left, right *forestNode
	feature     int
	split       float64
	size        int // leaf: number of samples that landed here
}

// IsolationForest is an ensemble of randomized binary split trees.
type IsolationForest struct {
	trees   []*forestNode
	divisor float64 // c(ψ): average path length normalizer
}

// FitForest trains an ensemble over the sample set. Returns nil when there is
// nothing to learn from.
func FitForest(samples []point, rng *rand.Rand) *IsolationForest {
	if len(samples) == 0 {
		return nil
	}

	psi := subsampleSize
	if len(samples) < psi {
		psi = len(samples)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi)))) + 1

	f := &IsolationForest{
		trees:   make([]*forestNode, 0, numTrees),
		divisor: avgPathLength(psi),
	}

	for i := 0; i < numTrees; i++ {
		sub := make([]point, psi)
		for j := range sub {
			sub[j] = samples[rng.Intn(len(samples))]
		}
		f.trees = append(f.trees, buildTree(sub, 0, maxDepth, rng))
	}
	return f
}

func buildTree(samples []point, depth, maxDepth int, rng *rand.Rand) *forestNode {
	if len(samples) <= 1 || depth >= maxDepth {
		return &forestNode{size: len(samples)}
	}

	// Pick a random feature; fall back to the other one when the first has no
	// spread at this node.
	feature := rng.Intn(2)
	lo, hi := featureRange(samples, feature)
	if hi == lo {
		feature = 1 - feature
		lo, hi = featureRange(samples, feature)
	}
	if hi == lo {
		return &forestNode{size: len(samples)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right []point
	for _, s := range samples {
		if s[feature] < split {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	return &forestNode{
		feature: feature,
		split:   split,
		left:    buildTree(left, depth+1, maxDepth, rng),
		right:   buildTree(right, depth+1, maxDepth, rng),
	}
}

func featureRange(samples []point, feature int) (lo, hi float64) {
	lo, hi = samples[0][feature], samples[0][feature]
	for _, s := range samples[1:] {
		if s[feature] < lo {
			lo = s[feature]
		}
		if s[feature] > hi {
			hi = s[feature]
		}
	}
	return lo, hi
}

// Score returns the normalized anomaly score in (0,1) for a point.
func (f *IsolationForest) Score(p point) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	var total float64
	for _, tree := range f.trees {
		total += pathLength(tree, p, 0)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/f.divisor)
}

// IsOutlier reports whether the point isolates fast enough to be anomalous.
func (f *IsolationForest) IsOutlier(p point) bool {
	return f.Score(p) > outlierThreshold
}

func pathLength(node *forestNode, p point, depth int) float64 {
	if node.left == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if p[node.feature] < node.split {
		return pathLength(node.left, p, depth+1)
	}
	return pathLength(node.right, p, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n items; it grounds leaf sizes and normalizes scores.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649 // harmonic number approximation
	return 2*h - 2*float64(n-1)/float64(n)
}
