package predict

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/healthsense-prediction-server/internal/domain"
)

// symptomVocabulary is the fixed feature schema. Index i of every feature
// vector corresponds to symptomVocabulary[i], at training time and at
// inference time alike.
var symptomVocabulary = []string{
	"fever", "cough", "fatigue", "body_ache", "headache", "sore_throat",
	"runny_nose", "shortness_of_breath", "chest_pain", "nausea",
	"vomiting", "diarrhea", "abdominal_pain", "loss_of_appetite",
	"weight_loss", "night_sweats", "joint_pain", "muscle_weakness",
	"dizziness", "confusion", "rash", "itching", "swelling",
	"back_pain", "neck_pain", "vision_problems", "hearing_loss",
	"difficulty_swallowing", "seizures", "numbness", "tingling",
	"frequent_urination", "blood_in_urine", "constipation", "bloating",
	"facial_pain",
}

// symptomTier groups a disease's associated symptoms by how often they
// present. The probabilities are plausible, not medically validated.
type symptomTier struct {
	strong   []string // present with probability 0.8
	moderate []string // present with probability 0.5
	weak     []string // present with probability 0.2
}

// Background noise probability for symptoms outside a disease's tiers.
const noisePresence = 0.05

const (
	strongPresence   = 0.8
	moderatePresence = 0.5
	weakPresence     = 0.2
)

var diseasePatterns = map[string]symptomTier{
	"Common Cold": {
		strong:   []string{"runny_nose", "sore_throat", "cough"},
		moderate: []string{"headache", "fatigue"},
		weak:     []string{"fever"},
	},
	"Influenza": {
		strong:   []string{"fever", "body_ache", "fatigue", "headache"},
		moderate: []string{"cough", "sore_throat"},
		weak:     []string{"runny_nose"},
	},
	"COVID-19": {
		strong:   []string{"fever", "cough", "fatigue", "shortness_of_breath"},
		moderate: []string{"headache", "body_ache", "sore_throat"},
		weak:     []string{"runny_nose", "nausea", "loss_of_appetite"},
	},
	"Pneumonia": {
		strong:   []string{"fever", "cough", "shortness_of_breath", "chest_pain"},
		moderate: []string{"fatigue", "body_ache"},
		weak:     []string{"headache"},
	},
	"Gastroenteritis": {
		strong:   []string{"nausea", "vomiting", "diarrhea", "abdominal_pain"},
		moderate: []string{"fever", "fatigue"},
		weak:     []string{"headache", "loss_of_appetite"},
	},
	"Migraine": {
		strong:   []string{"headache", "nausea"},
		moderate: []string{"fatigue", "dizziness", "vision_problems"},
		weak:     []string{"vomiting"},
	},
	"Diabetes Type 2": {
		strong:   []string{"frequent_urination", "fatigue", "weight_loss"},
		moderate: []string{"dizziness", "vision_problems"},
		weak:     []string{"numbness", "tingling"},
	},
	"Hypertension": {
		strong:   []string{"headache", "dizziness", "vision_problems"},
		moderate: []string{"chest_pain", "fatigue"},
		weak:     []string{"nausea"},
	},
	"Asthma": {
		strong:   []string{"shortness_of_breath", "cough", "chest_pain"},
		moderate: []string{"fatigue"},
		weak:     []string{"dizziness"},
	},
	"Urinary Tract Infection": {
		strong:   []string{"frequent_urination", "blood_in_urine", "abdominal_pain"},
		moderate: []string{"fever", "back_pain"},
		weak:     []string{"fatigue"},
	},
	"Arthritis": {
		strong:   []string{"joint_pain", "swelling", "muscle_weakness"},
		moderate: []string{"fatigue", "body_ache"},
		weak:     []string{"fever"},
	},
	"Allergic Reaction": {
		strong:   []string{"rash", "itching", "swelling"},
		moderate: []string{"shortness_of_breath", "nausea"},
		weak:     []string{"dizziness"},
	},
	"Bronchitis": {
		strong:   []string{"cough", "chest_pain", "fatigue"},
		moderate: []string{"sore_throat", "fever"},
		weak:     []string{"headache", "body_ache"},
	},
	"Strep Throat": {
		strong:   []string{"sore_throat", "fever", "difficulty_swallowing"},
		moderate: []string{"headache", "body_ache"},
		weak:     []string{"nausea"},
	},
	"Sinusitis": {
		strong:   []string{"headache", "runny_nose", "facial_pain"},
		moderate: []string{"cough", "fever"},
		weak:     []string{"fatigue"},
	},
}

// diseaseClasses returns the closed label set in label-encoder order
// (alphabetical, so class indices are stable across runs).
func diseaseClasses() []string {
	classes := make([]string, 0, len(diseasePatterns))
	for name := range diseasePatterns {
		classes = append(classes, name)
	}
	sort.Strings(classes)
	return classes
}

// presenceProfile maps each feature index to its presence probability for
// one disease.
func presenceProfile(tier symptomTier, symptomIndex map[string]int) []float64 {
	profile := make([]float64, len(symptomVocabulary))
	for i := range profile {
		profile[i] = noisePresence
	}
	assign := func(names []string, p float64) {
		for _, name := range names {
			if idx, ok := symptomIndex[name]; ok {
				profile[idx] = p
			}
		}
	}
	assign(tier.strong, strongPresence)
	assign(tier.moderate, moderatePresence)
	assign(tier.weak, weakPresence)
	return profile
}

// generateExamples builds the synthetic training set: n examples drawn
// uniformly over the disease classes, each symptom sampled independently
// from the disease's presence profile. The examples are discarded once the
// ensemble has been fitted.
func generateExamples(n int, rng *rand.Rand) (features [][]float64, labels []int, classes []string, err error) {
	classes = diseaseClasses()

	symptomIndex := make(map[string]int, len(symptomVocabulary))
	for i, name := range symptomVocabulary {
		symptomIndex[name] = i
	}

	profiles := make([][]float64, len(classes))
	for i, name := range classes {
		profiles[i] = presenceProfile(diseasePatterns[name], symptomIndex)
	}

	features = make([][]float64, n)
	labels = make([]int, n)
	counts := make([]int, len(classes))

	for i := 0; i < n; i++ {
		class := rng.Intn(len(classes))
		profile := profiles[class]

		vec := make([]float64, len(symptomVocabulary))
		for j := range vec {
			if rng.Float64() < profile[j] {
				vec[j] = 1
			}
		}

		features[i] = vec
		labels[i] = class
		counts[class]++
	}

	if len(classes) < 2 {
		return nil, nil, nil, fmt.Errorf("training set has %d classes: %w", len(classes), domain.ErrConfiguration)
	}
	for class, count := range counts {
		if count == 0 {
			return nil, nil, nil, fmt.Errorf("class %q has no training examples: %w", classes[class], domain.ErrConfiguration)
		}
	}

	return features, labels, classes, nil
}
