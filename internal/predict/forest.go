package predict

import (
	"math"
	"math/rand"
)

// forest is an ensemble of decision trees whose leaf distributions are
// averaged to produce per-class probability estimates.
type forest struct {
	trees      []*treeNode
	classes    int
	features   int
	importance []float64 // impurity-based, normalized to sum to 1
}

// fitForest trains the ensemble. Each tree is grown on a bootstrap sample
// with sqrt(numFeatures) candidate features per split. Trees are fitted
// sequentially from a single seeded source so training is deterministic.
func fitForest(features [][]float64, labels []int, classes int, cfg TrainConfig, rng *rand.Rand) *forest {
	n := len(features)
	numFeatures := len(features[0])

	maxFeatures := int(math.Sqrt(float64(numFeatures)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	params := treeParams{
		classes:         classes,
		maxDepth:        cfg.MaxDepth,
		minSamplesSplit: cfg.MinSamplesSplit,
		minSamplesLeaf:  cfg.MinSamplesLeaf,
		maxFeatures:     maxFeatures,
		totalSamples:    n,
	}

	importance := make([]float64, numFeatures)
	trees := make([]*treeNode, cfg.Trees)

	for t := 0; t < cfg.Trees; t++ {
		treeRNG := rand.New(rand.NewSource(rng.Int63()))

		sample := make([]int, n)
		for i := range sample {
			sample[i] = treeRNG.Intn(n)
		}

		trees[t] = growTree(features, labels, sample, 0, params, treeRNG, importance)
	}

	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}

	return &forest{
		trees:      trees,
		classes:    classes,
		features:   numFeatures,
		importance: importance,
	}
}

// predictProba averages the leaf distributions of all trees. The result is
// a normalized probability distribution over the class set.
func (f *forest) predictProba(vec []float64) []float64 {
	probs := make([]float64, f.classes)
	for _, tree := range f.trees {
		for c, p := range tree.classProbs(vec) {
			probs[c] += p
		}
	}
	inv := 1.0 / float64(len(f.trees))
	for c := range probs {
		probs[c] *= inv
	}
	return probs
}
