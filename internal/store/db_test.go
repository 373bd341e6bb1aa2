package store

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), true)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedAnalyses(t *testing.T, db *Database) {
	t.Helper()
	rows := []Analysis{
		{Filename: "apple-1.jpg", FreshnessScore: 88, SpoilageRisk: "Low", PesticideClass: "Pure", Grade: "excellent", SafeToEat: true, EstimatedWeightKg: 0.21},
		{Filename: "apple-2.jpg", FreshnessScore: 74, SpoilageRisk: "Low", PesticideClass: "Fungicide Low", Grade: "good", SafeToEat: true, EstimatedWeightKg: 0.18},
		{Filename: "apple-3.jpg", FreshnessScore: 62, SpoilageRisk: "Medium", PesticideClass: "Insecticide Low", Grade: "fair", SafeToEat: true, EstimatedWeightKg: 0.25},
		{Filename: "apple-4.jpg", FreshnessScore: 30, SpoilageRisk: "High", PesticideClass: "Pure", Grade: "poor", SafeToEat: false, EstimatedWeightKg: 0.19},
	}
	for i := range rows {
		if err := db.SaveAnalysis(&rows[i]); err != nil {
			t.Fatalf("save analysis: %v", err)
		}
	}
}

func TestListAnalysesFilters(t *testing.T) {
	db := openTestDB(t)
	seedAnalyses(t, db)

	safe := true
	tests := []struct {
		name     string
		query    AnalysisQuery
		expected int
	}{
		{"all", AnalysisQuery{}, 4},
		{"by grade", AnalysisQuery{Grade: "excellent"}, 1},
		{"grade is case-insensitive", AnalysisQuery{Grade: "EXCELLENT"}, 1},
		{"safe only", AnalysisQuery{SafeOnly: &safe}, 3},
		{"min freshness", AnalysisQuery{MinFreshness: 70}, 2},
		{"by risk", AnalysisQuery{SpoilageRisk: "Medium"}, 1},
		{"filename query", AnalysisQuery{Query: "apple-3"}, 1},
		{"pesticide query", AnalysisQuery{Query: "Fungicide"}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rows, total, err := db.ListAnalyses(tc.query)
			if err != nil {
				t.Fatalf("list analyses: %v", err)
			}
			if len(rows) != tc.expected || total != int64(tc.expected) {
				t.Fatalf("expected %d rows got %d (total %d)", tc.expected, len(rows), total)
			}
		})
	}
}

func TestListAnalysesSortAndPaging(t *testing.T) {
	db := openTestDB(t)
	seedAnalyses(t, db)

	rows, total, err := db.ListAnalyses(AnalysisQuery{Sort: "freshness_desc", Limit: 2})
	if err != nil {
		t.Fatalf("list analyses: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected total 4 got %d", total)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows got %d", len(rows))
	}
	if rows[0].FreshnessScore < rows[1].FreshnessScore {
		t.Fatalf("expected descending freshness, got %d then %d",
			rows[0].FreshnessScore, rows[1].FreshnessScore)
	}

	second, _, err := db.ListAnalyses(AnalysisQuery{Sort: "freshness_desc", Offset: 2, Limit: 2})
	if err != nil {
		t.Fatalf("list analyses page 2: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("expected 2 rows on second page got %d", len(second))
	}
	if second[0].FreshnessScore > rows[1].FreshnessScore {
		t.Fatalf("pages overlap: %d after %d", second[0].FreshnessScore, rows[1].FreshnessScore)
	}
}

func TestAnalysisJSONHelpers(t *testing.T) {
	db := openTestDB(t)

	row := Analysis{Filename: "apple.jpg", SpoilageRisk: "Low", Grade: "good", SafeToEat: true}
	row.SetNutrition(map[string]float64{"water_percent": 86.0, "sugar_percent": 10.0})
	row.SetSpectralCurve([]float64{50.1, 52.3})
	row.SetSensorValues([]int{12000, 18000})
	if err := db.SaveAnalysis(&row); err != nil {
		t.Fatalf("save analysis: %v", err)
	}

	loaded, err := db.GetAnalysis(row.ID)
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if got := loaded.Nutrition()["water_percent"]; got != 86.0 {
		t.Fatalf("expected water 86.0 got %v", got)
	}
	if curve := loaded.SpectralCurve(); len(curve) != 2 || curve[1] != 52.3 {
		t.Fatalf("unexpected spectral curve %v", curve)
	}
	if sensors := loaded.SensorValues(); len(sensors) != 2 || sensors[0] != 12000 {
		t.Fatalf("unexpected sensor values %v", sensors)
	}
}
