package grading

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidInput is returned when an analysis result is missing required
// fields or carries values outside the recognized domain.
var ErrInvalidInput = errors.New("invalid analysis input")

// SpoilageRisk is the coarse decay estimate reported by the analysis pipeline.
type SpoilageRisk string

const (
	SpoilageLow    SpoilageRisk = "Low"
	SpoilageMedium SpoilageRisk = "Medium"
	SpoilageHigh   SpoilageRisk = "High"
)

// ParseSpoilageRisk validates the upstream spoilage label. Matching is
// case-sensitive: the analysis pipeline only emits the three exact labels.
func ParseSpoilageRisk(value string) (SpoilageRisk, error) {
	switch SpoilageRisk(value) {
	case SpoilageLow, SpoilageMedium, SpoilageHigh:
		return SpoilageRisk(value), nil
	default:
		return "", fmt.Errorf("%w: unknown spoilage risk %q", ErrInvalidInput, value)
	}
}

// PesticideCategory collapses the free-text pesticide class into a closed set.
type PesticideCategory string

const (
	PesticidePure PesticideCategory = "Pure"
	PesticideLow  PesticideCategory = "Low"
	PesticideHigh PesticideCategory = "High"
)

// ClassifyPesticide derives the coarse pesticide category by case-insensitive
// substring match. Unrecognized strings fall through to Low rather than
// erroring; the upstream class vocabulary is open-ended.
func ClassifyPesticide(raw string) PesticideCategory {
	lowered := strings.ToLower(raw)
	switch {
	case strings.Contains(lowered, "pure"):
		return PesticidePure
	case strings.Contains(lowered, "high"):
		return PesticideHigh
	default:
		return PesticideLow
	}
}

// Grade is the closed quality tag, also used by the dashboard as a styling key.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeFair      Grade = "fair"
	GradePoor      Grade = "poor"
	GradeUnsafe    Grade = "unsafe"
)

// AnalysisResult is the structured output of the image analysis consumed by
// the grading engine. EstimatedWeightKg and Nutrition are informational and do
// not influence the verdict.
type AnalysisResult struct {
	FreshnessScore    float64            `json:"freshness_score"`
	SpoilageRisk      string             `json:"spoilage_risk"`
	PesticideClass    string             `json:"pesticide_class"`
	EstimatedWeightKg float64            `json:"estimated_weight_kg"`
	Nutrition         map[string]float64 `json:"nutrition,omitempty"`
}

// QualityAssessment is the human-facing verdict derived from an AnalysisResult.
type QualityAssessment struct {
	Grade     Grade  `json:"grade"`
	GradeText string `json:"grade_text"`
	SafeToEat bool   `json:"safe_to_eat"`
	Message   string `json:"message"`
	ShelfLife string `json:"shelf_life"`
}

const washAdvisory = " Wash thoroughly under running water before eating to remove pesticide residue."

// Grade maps an analysis result to a quality verdict. The function is pure and
// deterministic; rules are evaluated in strict priority order, first match
// wins. Note the ordering asymmetry: a low-freshness, Low-spoilage sample
// falls past the Medium-spoilage rules into the Poor catch-all even when the
// pesticide category is Pure. That mirrors the shipped rule table and is kept
// as the contract.
func GradeQuality(result AnalysisResult) (QualityAssessment, error) {
	if math.IsNaN(result.FreshnessScore) || math.IsInf(result.FreshnessScore, 0) {
		return QualityAssessment{}, fmt.Errorf("%w: freshness score is not a finite number", ErrInvalidInput)
	}
	spoilage, err := ParseSpoilageRisk(result.SpoilageRisk)
	if err != nil {
		return QualityAssessment{}, err
	}

	pesticide := ClassifyPesticide(result.PesticideClass)
	freshness := result.FreshnessScore

	var assessment QualityAssessment
	switch {
	case spoilage == SpoilageHigh:
		assessment = QualityAssessment{
			Grade:     GradePoor,
			GradeText: "Poor Quality - High Spoilage Risk",
			SafeToEat: false,
			ShelfLife: "Spoiled",
			Message:   "High spoilage risk detected. This fruit shows significant decay and should not be consumed.",
		}
	case pesticide == PesticideHigh:
		assessment = QualityAssessment{
			Grade:     GradeUnsafe,
			GradeText: "Unsafe - High Pesticide Levels",
			SafeToEat: false,
			ShelfLife: "Not Safe",
			Message:   "High pesticide residue detected. Washing is not sufficient at this level; do not consume.",
		}
	case freshness >= 80 && spoilage == SpoilageLow && pesticide == PesticidePure:
		assessment = QualityAssessment{
			Grade:     GradeExcellent,
			GradeText: "Excellent Quality",
			SafeToEat: true,
			ShelfLife: "7-10 days",
			Message:   "Excellent condition with high freshness and no pesticide concerns. Safe to eat.",
		}
	case freshness >= 70 && spoilage == SpoilageLow:
		assessment = QualityAssessment{
			Grade:     GradeGood,
			GradeText: "Good Quality",
			SafeToEat: true,
			ShelfLife: "5-7 days",
			Message:   "Good condition with solid freshness. Safe to eat.",
		}
	case freshness >= 60 && spoilage == SpoilageMedium:
		assessment = QualityAssessment{
			Grade:     GradeFair,
			GradeText: "Fair Quality - Consume Soon",
			SafeToEat: true,
			ShelfLife: "1-3 days",
			Message:   "Moderate freshness with early signs of spoilage. Consume within the next few days.",
		}
	case spoilage == SpoilageMedium:
		assessment = QualityAssessment{
			Grade:     GradeFair,
			GradeText: "Fair Quality - Limited Freshness",
			SafeToEat: true,
			ShelfLife: "1-2 days",
			Message:   "Moderate freshness with early signs of spoilage. Consume within the next few days.",
		}
	default:
		assessment = QualityAssessment{
			Grade:     GradePoor,
			GradeText: "Poor Quality",
			SafeToEat: false,
			ShelfLife: "Not recommended",
			Message:   "Low freshness detected. Consumption is not recommended.",
		}
	}

	if assessment.SafeToEat && pesticide != PesticidePure {
		assessment.Message += washAdvisory
	}

	return assessment, nil
}
