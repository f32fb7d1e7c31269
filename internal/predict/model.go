// Package predict implements the symptom-to-disease classifier: synthetic
// training data generation, an ensemble of decision trees, and ranked
// probability inference with feature importances.
//
// A Model is built once by Train, is immutable afterwards, and is safe for
// concurrent readers. Re-training produces a new Model value; callers swap
// the reference rather than mutating in place.
package predict

import (
	"fmt"
	"math/rand"
	"time"
)

// TrainConfig controls the synthetic training run. Zero fields fall back to
// the defaults, so partial configs unmarshalled from file are usable as-is.
type TrainConfig struct {
	Seed            int64
	Examples        int
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
}

// DefaultTrainConfig returns the stock hyperparameters: 200 trees of max
// depth 15 over 2500 synthetic examples, seed 42.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Seed:            42,
		Examples:        2500,
		Trees:           200,
		MaxDepth:        15,
		MinSamplesSplit: 4,
		MinSamplesLeaf:  2,
	}
}

func (c TrainConfig) withDefaults() TrainConfig {
	d := DefaultTrainConfig()
	if c.Seed != 0 {
		d.Seed = c.Seed
	}
	if c.Examples > 0 {
		d.Examples = c.Examples
	}
	if c.Trees > 0 {
		d.Trees = c.Trees
	}
	if c.MaxDepth > 0 {
		d.MaxDepth = c.MaxDepth
	}
	if c.MinSamplesSplit > 0 {
		d.MinSamplesSplit = c.MinSamplesSplit
	}
	if c.MinSamplesLeaf > 0 {
		d.MinSamplesLeaf = c.MinSamplesLeaf
	}
	return d
}

// Model owns the fitted ensemble, the label encoder (disease name to class
// index and back) and the symptom-name-to-index mapping. All fields are
// fixed at construction.
type Model struct {
	forest       *forest
	labels       []string
	labelIndex   map[string]int
	symptoms     []string
	symptomIndex map[string]int
	config       TrainConfig
	trainedAt    time.Time
}

// Train generates the synthetic dataset and fits the ensemble. It is
// deterministic for a fixed seed and performs no I/O. It fails with a
// configuration error when the generated set is degenerate (fewer than two
// classes, or a class with no examples).
func Train(cfg TrainConfig) (*Model, error) {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))

	features, labels, classes, err := generateExamples(cfg.Examples, rng)
	if err != nil {
		return nil, fmt.Errorf("generating training data: %w", err)
	}

	f := fitForest(features, labels, len(classes), cfg, rng)

	labelIndex := make(map[string]int, len(classes))
	for i, name := range classes {
		labelIndex[name] = i
	}
	symptoms := make([]string, len(symptomVocabulary))
	copy(symptoms, symptomVocabulary)
	symptomIndex := make(map[string]int, len(symptoms))
	for i, name := range symptoms {
		symptomIndex[name] = i
	}

	return &Model{
		forest:       f,
		labels:       classes,
		labelIndex:   labelIndex,
		symptoms:     symptoms,
		symptomIndex: symptomIndex,
		config:       cfg,
		trainedAt:    time.Now().UTC(),
	}, nil
}

// Encode translates a collection of symptom names into a feature vector
// aligned to the model's schema. Unrecognized names are ignored; an empty
// input yields the all-zero vector.
func (m *Model) Encode(names []string) []float64 {
	vec := make([]float64, len(m.symptoms))
	for _, name := range names {
		if idx, ok := m.symptomIndex[name]; ok {
			vec[idx] = 1
		}
	}
	return vec
}

// Decode returns the symptom names of the active positions of a feature
// vector, in schema order.
func (m *Model) Decode(vec []float64) []string {
	var names []string
	for i, v := range vec {
		if i < len(m.symptoms) && v >= 0.5 {
			names = append(names, m.symptoms[i])
		}
	}
	return names
}

// Symptoms returns the symptom vocabulary in feature order.
func (m *Model) Symptoms() []string {
	out := make([]string, len(m.symptoms))
	copy(out, m.symptoms)
	return out
}

// Diseases returns the closed disease label set in class-index order.
func (m *Model) Diseases() []string {
	out := make([]string, len(m.labels))
	copy(out, m.labels)
	return out
}

// NumClasses returns the size of the disease label set.
func (m *Model) NumClasses() int { return len(m.labels) }

// NumFeatures returns the length of the feature schema.
func (m *Model) NumFeatures() int { return len(m.symptoms) }

// Importances returns the ensemble's global feature importances keyed by
// symptom name.
func (m *Model) Importances() map[string]float64 {
	out := make(map[string]float64, len(m.symptoms))
	for i, name := range m.symptoms {
		out[name] = m.forest.importance[i]
	}
	return out
}

// Config returns the hyperparameters the model was trained with.
func (m *Model) Config() TrainConfig { return m.config }

// TrainedAt returns the model build time.
func (m *Model) TrainedAt() time.Time { return m.trainedAt }
