package predict

import (
	"fmt"
	"sort"

	"github.com/healthsense-prediction-server/internal/domain"
)

// Ranking is one (disease, confidence) pair of a prediction.
type Ranking struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// Result is a ranked prediction: all requested classes sorted descending by
// confidence, plus the importance of each input symptom. Confidences across
// the untruncated class set sum to 1.
type Result struct {
	Rankings     []Ranking          `json:"rankings"`
	Importance   map[string]float64 `json:"symptom_importance"`
	SymptomCount int                `json:"symptom_count"`
}

// Primary returns the top-ranked disease.
func (r *Result) Primary() Ranking {
	if len(r.Rankings) == 0 {
		return Ranking{}
	}
	return r.Rankings[0]
}

// Predictor runs read-only inference against an immutable Model.
type Predictor struct {
	model *Model
}

// NewPredictor creates a predictor for the given model. A nil model is
// allowed; inference then fails with a model-not-trained error.
func NewPredictor(model *Model) *Predictor {
	return &Predictor{model: model}
}

// Model returns the attached model, or nil.
func (p *Predictor) Model() *Model { return p.model }

// Predict encodes the symptom names and ranks all disease classes. limit
// caps the number of returned rankings; zero or negative means all classes.
func (p *Predictor) Predict(symptoms []string, limit int) (*Result, error) {
	if p.model == nil {
		return nil, fmt.Errorf("predicting: %w", domain.ErrModelNotTrained)
	}
	return p.PredictVector(p.model.Encode(symptoms), limit)
}

// PredictVector ranks all disease classes for an already encoded feature
// vector. The vector length must match the model's feature schema.
func (p *Predictor) PredictVector(vec []float64, limit int) (*Result, error) {
	if p.model == nil {
		return nil, fmt.Errorf("predicting: %w", domain.ErrModelNotTrained)
	}
	if len(vec) != p.model.NumFeatures() {
		return nil, fmt.Errorf("feature vector length %d does not match model schema %d: %w",
			len(vec), p.model.NumFeatures(), domain.ErrInvalidInput)
	}

	probs := p.model.forest.predictProba(vec)

	// Sort descending by probability; ties resolve to the lower class
	// index so ordering is deterministic.
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if probs[order[a]] != probs[order[b]] {
			return probs[order[a]] > probs[order[b]]
		}
		return order[a] < order[b]
	})

	count := len(order)
	if limit > 0 && limit < count {
		count = limit
	}

	rankings := make([]Ranking, count)
	for i := 0; i < count; i++ {
		class := order[i]
		rankings[i] = Ranking{
			Disease:    p.model.labels[class],
			Confidence: probs[class],
		}
	}

	importance := make(map[string]float64)
	active := 0
	for i, v := range vec {
		if v >= 0.5 {
			active++
			importance[p.model.symptoms[i]] = p.model.forest.importance[i]
		}
	}

	return &Result{
		Rankings:     rankings,
		Importance:   importance,
		SymptomCount: active,
	}, nil
}
