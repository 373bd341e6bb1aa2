package analysis

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"testing"
)

func TestSpoilageRiskLabel(t *testing.T) {
	tests := []struct {
		name     string
		ratio    int
		expected string
	}{
		{"zero", 0, "Low"},
		{"upper low", 25, "Low"},
		{"lower medium", 26, "Medium"},
		{"upper medium", 50, "Medium"},
		{"lower high", 51, "High"},
		{"full", 100, "High"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SpoilageRiskLabel(tc.ratio); got != tc.expected {
				t.Fatalf("expected %s got %s", tc.expected, got)
			}
		})
	}
}

func TestDryMatterFromFreshness(t *testing.T) {
	tests := []struct {
		name      string
		freshness int
		expected  float64
	}{
		{"floor", 0, 10.0},
		{"mid", 50, 14.0},
		{"ceiling", 100, 18.0},
		{"clamped negative", -20, 10.0},
		{"clamped above range", 140, 18.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DryMatterFromFreshness(tc.freshness); got != tc.expected {
				t.Fatalf("expected %v got %v", tc.expected, got)
			}
		})
	}
}

func TestNutritionFromDryMatter(t *testing.T) {
	baseline := NutritionFromDryMatter(14.0)
	expected := Nutrition{WaterPercent: 86.0, SugarPercent: 10.0, Fiber: 2.4, VitaminCMg: 4.6}
	if baseline != expected {
		t.Fatalf("expected %+v got %+v", expected, baseline)
	}

	// Extreme dry matter must stay within the clamped ranges.
	for _, dm := range []float64{-50, 0, 30, 200} {
		n := NutritionFromDryMatter(dm)
		if n.WaterPercent < 70 || n.WaterPercent > 90 {
			t.Fatalf("water %.1f out of range for dm %.1f", n.WaterPercent, dm)
		}
		if n.SugarPercent < 5 || n.SugarPercent > 20 {
			t.Fatalf("sugar %.1f out of range for dm %.1f", n.SugarPercent, dm)
		}
		if n.Fiber < 1 || n.Fiber > 5 {
			t.Fatalf("fiber %.1f out of range for dm %.1f", n.Fiber, dm)
		}
		if n.VitaminCMg < 1 || n.VitaminCMg > 8 {
			t.Fatalf("vitamin C %.1f out of range for dm %.1f", n.VitaminCMg, dm)
		}
	}
}

func appleImagePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			switch {
			case x > 30 && x < 90 && y > 30 && y < 90:
				// red subject
				img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
			case x > 50 && x < 70 && y > 70 && y < 88:
				// dark bruise
				img.Set(x, y, color.RGBA{R: 40, G: 20, B: 15, A: 255})
			default:
				img.Set(x, y, color.RGBA{R: 235, G: 235, B: 230, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestAnalyzeProducesCompleteResult(t *testing.T) {
	analyzer := New(42)
	result, err := analyzer.Analyze(appleImagePNG(t))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if result.FreshnessScore < 0 || result.FreshnessScore > 100 {
		t.Fatalf("freshness %d out of range", result.FreshnessScore)
	}
	switch result.SpoilageRisk {
	case "Low", "Medium", "High":
	default:
		t.Fatalf("unexpected spoilage risk %q", result.SpoilageRisk)
	}
	if result.DryMatterPercent < 10 || result.DryMatterPercent > 18 {
		t.Fatalf("dry matter %.1f out of range", result.DryMatterPercent)
	}
	if result.EstimatedWeightKg <= 0 {
		t.Fatalf("weight %.2f should be positive", result.EstimatedWeightKg)
	}
	if len(result.SpectralCurve) != spectralPoints {
		t.Fatalf("expected %d spectral points got %d", spectralPoints, len(result.SpectralCurve))
	}
	if len(result.SensorValues) != sensorChannels {
		t.Fatalf("expected %d sensor channels got %d", sensorChannels, len(result.SensorValues))
	}
	for i, v := range result.SensorValues {
		if v < 5000 || v >= 35000 {
			t.Fatalf("sensor channel %d value %d out of range", i, v)
		}
	}
	found := false
	for _, class := range pesticideClasses {
		if result.PesticideClass == class {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("unexpected pesticide class %q", result.PesticideClass)
	}
}

func TestAnalyzeDeterministicWithSeed(t *testing.T) {
	data := appleImagePNG(t)

	first, err := New(7).Analyze(data)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	second, err := New(7).Analyze(data)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed and image produced different results:\n%+v\n%+v", first, second)
	}
}

func TestAnalyzeRejectsGarbage(t *testing.T) {
	if _, err := New(1).Analyze([]byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestWeightFallbackOnBlankFrame(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	result, err := New(3).Analyze(buf.Bytes())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.EstimatedWeightKg < 0.15 || result.EstimatedWeightKg > 0.30 {
		t.Fatalf("expected fallback weight in [0.15, 0.30], got %.2f", result.EstimatedWeightKg)
	}
}
