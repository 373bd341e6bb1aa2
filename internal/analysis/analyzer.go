package analysis

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Nutrition is the estimated composition derived from dry matter.
type Nutrition struct {
	WaterPercent float64 `json:"water_percent"`
	SugarPercent float64 `json:"sugar_percent"`
	Fiber        float64 `json:"fiber"`
	VitaminCMg   float64 `json:"vitamin_c_mg"`
}

// Map flattens the record for callers that carry nutrition as loose metrics.
func (n Nutrition) Map() map[string]float64 {
	return map[string]float64{
		"water_percent": n.WaterPercent,
		"sugar_percent": n.SugarPercent,
		"fiber":         n.Fiber,
		"vitamin_c_mg":  n.VitaminCMg,
	}
}

// Result is the full analysis output for one uploaded image.
type Result struct {
	FreshnessScore    int
	SpoilageRatio     int
	SpoilageRisk      string
	DryMatterPercent  float64
	PesticideClass    string
	EstimatedWeightKg float64
	Nutrition         Nutrition
	SpectralCurve     []float64
	SensorValues      []int
}

// pesticideClasses is the demo residue vocabulary; there is no real residue
// sensor, a class is drawn at random per analysis.
var pesticideClasses = []string{"Pure", "Insecticide Low", "Fungicide Low", "Fungicide High"}

const (
	spectralPoints = 50
	sensorChannels = 18
)

// Analyzer turns raw image bytes into an analysis result. Image-derived
// metrics (freshness, spoilage, weight) come from pixel statistics; the
// remaining metrics are simulated the way the original demo hardware stack
// faked them. Safe for concurrent use; the RNG is guarded by a mutex.
type Analyzer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs an analyzer. A non-zero seed makes every generated metric
// reproducible, which the demo mode and the tests rely on.
func New(seed int64) *Analyzer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Analyzer{rng: rand.New(rand.NewSource(seed))}
}

// Analyze decodes the image and produces the complete metric set.
func (a *Analyzer) Analyze(data []byte) (*Result, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	sampled := sampleImage(img)
	freshness, spoilageRatio := a.freshnessFromSample(sampled)
	dryMatter := DryMatterFromFreshness(freshness)

	return &Result{
		FreshnessScore:    freshness,
		SpoilageRatio:     spoilageRatio,
		SpoilageRisk:      SpoilageRiskLabel(spoilageRatio),
		DryMatterPercent:  dryMatter,
		PesticideClass:    pesticideClasses[a.rng.Intn(len(pesticideClasses))],
		EstimatedWeightKg: a.weightFromSample(sampled),
		Nutrition:         NutritionFromDryMatter(dryMatter),
		SpectralCurve:     a.spectralCurve(),
		SensorValues:      a.sensorValues(),
	}, nil
}

// freshnessFromSample clusters the Lab pixels (k=3): the cluster with the
// highest a channel reads as fresh red tissue, the darkest cluster as spoiled.
// When the two clusters together cover under 5% of the frame the subject is
// assumed absent and a neutral reading is returned.
func (a *Analyzer) freshnessFromSample(s sampledImage) (freshness, spoilageRatio int) {
	labels, centers := kmeansLab(s.lab, 3, a.rng)
	if len(centers) < 2 {
		return 60, 30
	}

	freshCluster := 0
	spoiledCluster := 0
	for i, c := range centers {
		if c.a > centers[freshCluster].a {
			freshCluster = i
		}
		if c.l < centers[spoiledCluster].l {
			spoiledCluster = i
		}
	}

	freshPixels := 0
	spoiledPixels := 0
	for _, label := range labels {
		if label == freshCluster {
			freshPixels++
		}
		if label == spoiledCluster {
			spoiledPixels++
		}
	}

	subjectPixels := freshPixels + spoiledPixels
	if float64(subjectPixels) < 0.05*float64(len(labels)) {
		return 60, 30
	}

	freshness = int(100 * float64(freshPixels) / float64(subjectPixels))
	spoilageRatio = int(100 * float64(spoiledPixels) / float64(subjectPixels))
	return freshness, spoilageRatio
}

// weightFromSample estimates mass from the enclosing radius of the largest
// dark region. Falls back to a random plausible weight when segmentation
// finds nothing.
func (a *Analyzer) weightFromSample(s sampledImage) float64 {
	radius, ok := largestForegroundRadius(s)
	if !ok {
		return round2(0.15 + a.rng.Float64()*0.15)
	}
	if radius < 10 {
		radius = 10
	}
	return round2(0.0015 * math.Pow(radius, 1.2))
}

func (a *Analyzer) spectralCurve() []float64 {
	curve := make([]float64, spectralPoints)
	for i := range curve {
		base := math.Sin(float64(i)/5)*20 + 50
		curve[i] = round2(base + a.rng.NormFloat64()*3)
	}
	return curve
}

func (a *Analyzer) sensorValues() []int {
	values := make([]int, sensorChannels)
	for i := range values {
		values[i] = 5000 + a.rng.Intn(30000)
	}
	return values
}

// SpoilageRiskLabel buckets the spoiled-pixel ratio into the coarse label the
// grading engine consumes.
func SpoilageRiskLabel(spoilageRatio int) string {
	switch {
	case spoilageRatio <= 25:
		return "Low"
	case spoilageRatio <= 50:
		return "Medium"
	default:
		return "High"
	}
}

// DryMatterFromFreshness maps freshness onto a ~10-18% dry matter estimate.
func DryMatterFromFreshness(freshness int) float64 {
	if freshness < 0 {
		freshness = 0
	}
	if freshness > 100 {
		freshness = 100
	}
	return round1(10.0 + 0.08*float64(freshness))
}

// NutritionFromDryMatter derives composition estimates from the dry matter
// percentage, clamped to plausible ranges for pome fruit.
func NutritionFromDryMatter(dryMatter float64) Nutrition {
	factor := (dryMatter - 14.0) / 4.0
	vitC := 4.6
	if factor > 0 {
		vitC = 4.6 - 0.5*factor
	}
	return Nutrition{
		WaterPercent: round1(clamp(86.0-2.0*factor, 70.0, 90.0)),
		SugarPercent: round1(clamp(10.0+1.0*factor, 5.0, 20.0)),
		Fiber:        round1(clamp(2.4+0.3*factor, 1.0, 5.0)),
		VitaminCMg:   round1(clamp(vitC, 1.0, 8.0)),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
