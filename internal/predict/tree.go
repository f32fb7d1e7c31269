package predict

import (
	"math/rand"
)

// treeNode is a single node of a fitted decision tree. Internal nodes test
// one binary feature; leaves hold a class probability distribution.
type treeNode struct {
	feature int
	left    *treeNode // feature absent
	right   *treeNode // feature present
	probs   []float64 // non-nil only at leaves, sums to 1
}

type treeParams struct {
	classes         int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	totalSamples    int
}

func classCounts(labels []int, samples []int, classes int) []int {
	counts := make([]int, classes)
	for _, i := range samples {
		counts[labels[i]]++
	}
	return counts
}

// gini computes the Gini impurity of a class count vector over n samples.
func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func newLeaf(counts []int, n int) *treeNode {
	probs := make([]float64, len(counts))
	for i, c := range counts {
		probs[i] = float64(c) / float64(n)
	}
	return &treeNode{feature: -1, probs: probs}
}

func isPure(counts []int, n int) bool {
	for _, c := range counts {
		if c == n {
			return true
		}
	}
	return false
}

// growTree fits a CART-style tree over binary features. At each node a
// random subset of maxFeatures candidate features is considered and the
// split with the largest Gini decrease is taken. Impurity decreases,
// weighted by the fraction of samples reaching the node, are accumulated
// into importance per feature.
func growTree(features [][]float64, labels []int, samples []int, depth int, p treeParams, rng *rand.Rand, importance []float64) *treeNode {
	n := len(samples)
	counts := classCounts(labels, samples, p.classes)

	if depth >= p.maxDepth || n < p.minSamplesSplit || isPure(counts, n) {
		return newLeaf(counts, n)
	}

	parentImpurity := gini(counts, n)

	bestFeature := -1
	bestGain := 0.0

	numFeatures := len(features[0])
	for _, f := range rng.Perm(numFeatures)[:p.maxFeatures] {
		leftCounts := make([]int, p.classes)
		nLeft := 0
		for _, i := range samples {
			if features[i][f] < 0.5 {
				leftCounts[labels[i]]++
				nLeft++
			}
		}
		nRight := n - nLeft
		if nLeft < p.minSamplesLeaf || nRight < p.minSamplesLeaf {
			continue
		}

		rightCounts := make([]int, p.classes)
		for c := range rightCounts {
			rightCounts[c] = counts[c] - leftCounts[c]
		}

		weighted := float64(nLeft)/float64(n)*gini(leftCounts, nLeft) +
			float64(nRight)/float64(n)*gini(rightCounts, nRight)
		gain := parentImpurity - weighted
		if gain > bestGain {
			bestGain = gain
			bestFeature = f
		}
	}

	if bestFeature < 0 {
		return newLeaf(counts, n)
	}

	importance[bestFeature] += float64(n) / float64(p.totalSamples) * bestGain

	left := make([]int, 0, n)
	right := make([]int, 0, n)
	for _, i := range samples {
		if features[i][bestFeature] < 0.5 {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &treeNode{
		feature: bestFeature,
		left:    growTree(features, labels, left, depth+1, p, rng, importance),
		right:   growTree(features, labels, right, depth+1, p, rng, importance),
	}
}

// classProbs walks the tree for one feature vector and returns the leaf
// distribution.
func (t *treeNode) classProbs(vec []float64) []float64 {
	node := t
	for node.probs == nil {
		if vec[node.feature] < 0.5 {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.probs
}
