package api

import (
	"strings"
	"time"

	"fruit-quality-eval/backend/internal/grading"
	"fruit-quality-eval/backend/internal/store"
)

// LoginRequest is the credential payload from the login form.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// UserDTO is the profile shape the dashboard keeps in browser storage.
type UserDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LoginResponse carries the issued token and user profile.
type LoginResponse struct {
	Token   string  `json:"token"`
	User    UserDTO `json:"user"`
	Message string  `json:"message"`
}

// NutritionDTO mirrors the original analysis response field names.
type NutritionDTO struct {
	WaterPercent float64 `json:"water_percent"`
	SugarPercent float64 `json:"sugar_percent"`
	Fiber        float64 `json:"fiber"`
	VitaminCMg   float64 `json:"vitamin_c_mg"`
}

// AnalysisDTO is the API representation for one analysis, used both as the
// analyze response and in history listings. Field names follow the original
// analysis endpoint so the dashboard consumes it unchanged; the quality block
// is the grading verdict layered on top.
type AnalysisDTO struct {
	ID                uint                      `json:"id"`
	Filename          string                    `json:"filename,omitempty"`
	FreshnessScore    int                       `json:"freshness_score"`
	DryMatterPercent  float64                   `json:"dry_matter_percent"`
	SpoilageRisk      string                    `json:"spoilage_risk"`
	PesticideClass    string                    `json:"pesticide_class"`
	PesticideCategory string                    `json:"pesticide_category"`
	EstimatedWeightKg float64                   `json:"estimated_weight_kg"`
	Nutrition         NutritionDTO              `json:"nutrition"`
	SpectralCurve     []float64                 `json:"spectral_prediction_graph_data"`
	SensorValues      []int                     `json:"sensor_emulation_values"`
	Quality           grading.QualityAssessment `json:"quality"`
	ProcessingTimeMs  int64                     `json:"processing_time_ms"`
	CreatedAt         time.Time                 `json:"created_at"`
}

// AnalysesResponse holds history items and totals.
type AnalysesResponse struct {
	Items []AnalysisDTO `json:"items"`
	Total int64         `json:"total"`
}

// FromModel converts a store.Analysis into the DTO representation.
func FromModel(a store.Analysis) AnalysisDTO {
	nutrition := a.Nutrition()
	return AnalysisDTO{
		ID:                a.ID,
		Filename:          a.Filename,
		FreshnessScore:    a.FreshnessScore,
		DryMatterPercent:  a.DryMatterPercent,
		SpoilageRisk:      a.SpoilageRisk,
		PesticideClass:    a.PesticideClass,
		PesticideCategory: a.PesticideCategory,
		EstimatedWeightKg: a.EstimatedWeightKg,
		Nutrition: NutritionDTO{
			WaterPercent: nutrition["water_percent"],
			SugarPercent: nutrition["sugar_percent"],
			Fiber:        nutrition["fiber"],
			VitaminCMg:   nutrition["vitamin_c_mg"],
		},
		SpectralCurve: a.SpectralCurve(),
		SensorValues:  a.SensorValues(),
		Quality: grading.QualityAssessment{
			Grade:     grading.Grade(a.Grade),
			GradeText: a.GradeText,
			SafeToEat: a.SafeToEat,
			Message:   strings.TrimSpace(a.Message),
			ShelfLife: a.ShelfLife,
		},
		ProcessingTimeMs: a.ProcessingTimeMs,
		CreatedAt:        a.CreatedAt,
	}
}
