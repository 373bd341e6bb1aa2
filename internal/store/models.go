package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Analysis is one persisted inspection: the raw metrics produced by the
// analysis pipeline plus the grading verdict derived from them.
type Analysis struct {
	ID                uint   `gorm:"primaryKey"`
	Filename          string `gorm:"size:256;index"`
	FreshnessScore    int    `gorm:"index"`
	SpoilageRatio     int
	SpoilageRisk      string `gorm:"size:16;index"`
	DryMatterPercent  float64
	PesticideClass    string `gorm:"size:64"`
	PesticideCategory string `gorm:"size:16;index"`
	EstimatedWeightKg float64
	NutritionJSON     string `gorm:"type:text"`
	SpectralJSON      string `gorm:"type:text"`
	SensorJSON        string `gorm:"type:text"`
	Grade             string `gorm:"size:16;index"`
	GradeText         string `gorm:"size:64"`
	SafeToEat         bool   `gorm:"index"`
	Message           string `gorm:"type:text"`
	ShelfLife         string `gorm:"size:32"`
	ProcessingTimeMs  int64
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

// SetNutrition stores the nutrition metrics as JSON.
func (a *Analysis) SetNutrition(nutrition map[string]float64) {
	payload, _ := json.Marshal(nutrition)
	a.NutritionJSON = string(payload)
}

// Nutrition returns the decoded nutrition metrics.
func (a *Analysis) Nutrition() map[string]float64 {
	if strings.TrimSpace(a.NutritionJSON) == "" {
		return nil
	}
	var out map[string]float64
	if err := json.Unmarshal([]byte(a.NutritionJSON), &out); err != nil {
		return nil
	}
	return out
}

// SetSpectralCurve stores the simulated spectral curve as JSON.
func (a *Analysis) SetSpectralCurve(curve []float64) {
	payload, _ := json.Marshal(curve)
	a.SpectralJSON = string(payload)
}

// SpectralCurve returns the decoded spectral curve.
func (a *Analysis) SpectralCurve() []float64 {
	if strings.TrimSpace(a.SpectralJSON) == "" {
		return nil
	}
	var out []float64
	if err := json.Unmarshal([]byte(a.SpectralJSON), &out); err != nil {
		return nil
	}
	return out
}

// SetSensorValues stores the 18-channel sensor emulation as JSON.
func (a *Analysis) SetSensorValues(values []int) {
	payload, _ := json.Marshal(values)
	a.SensorJSON = string(payload)
}

// SensorValues returns the decoded sensor emulation channels.
func (a *Analysis) SensorValues() []int {
	if strings.TrimSpace(a.SensorJSON) == "" {
		return nil
	}
	var out []int
	if err := json.Unmarshal([]byte(a.SensorJSON), &out); err != nil {
		return nil
	}
	return out
}

// Session is an issued login token with its user profile and expiry.
type Session struct {
	Token     string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:128"`
	Email     string `gorm:"size:256;index"`
	Remember  bool
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
