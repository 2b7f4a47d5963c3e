package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HybridWeights is a (bm25, semantic) weight pair for rank fusion.
type HybridWeights struct {
	BM25     float64 `yaml:"bm25"`
	Semantic float64 `yaml:"semantic"`
}

// IntentThreshold is a per-intent floor/multiplier pair for the adaptive
// threshold: max(floor, mean - stddev*multiplier).
type IntentThreshold struct {
	Floor      float64 `yaml:"floor"`
	Multiplier float64 `yaml:"multiplier"`
}

// Tuning holds every hand-tuned retrieval constant as configuration data so
// the tables can change without redeploying the engine.
type Tuning struct {
	RRFK            int     `yaml:"rrf_k"`
	DefaultTopK     int     `yaml:"default_top_k"`
	FuzzyCutoff     int     `yaml:"fuzzy_cutoff"`
	EntitySampleMax int     `yaml:"entity_sample_max"`
	RRFBlendRRF     float64 `yaml:"rrf_blend_rrf"`
	RRFBlendVector  float64 `yaml:"rrf_blend_vector"`
	FilteredBoost   float64 `yaml:"filtered_boost"`

	DefaultWeights HybridWeights            `yaml:"default_weights"`
	IntentWeights  map[string]HybridWeights `yaml:"intent_weights"`

	ThresholdFloor      float64                    `yaml:"threshold_floor"`
	ThresholdMultiplier float64                    `yaml:"threshold_multiplier"`
	TopScoreRatio       float64                    `yaml:"top_score_ratio"`
	MinDocsRequired     int                        `yaml:"min_docs_required"`
	DefaultIntentCutoff IntentThreshold            `yaml:"default_intent_cutoff"`
	IntentCutoffs       map[string]IntentThreshold `yaml:"intent_cutoffs"`

	IntentTopK  map[string]int    `yaml:"intent_top_k"`
	IntentTheme map[string]string `yaml:"intent_theme"`

	MinFilteredResults      int `yaml:"min_filtered_results"`
	MaxReflectionIterations int `yaml:"max_reflection_iterations"`
	MaxCorrectionIterations int `yaml:"max_correction_iterations"`
}

// DefaultTuning mirrors the hand-tuned production constants.
func DefaultTuning() Tuning {
	return Tuning{
		RRFK:            60,
		DefaultTopK:     5,
		FuzzyCutoff:     75,
		EntitySampleMax: 50,
		RRFBlendRRF:     0.7,
		RRFBlendVector:  0.3,
		FilteredBoost:   0.2,

		DefaultWeights: HybridWeights{BM25: 0.4, Semantic: 0.6},
		IntentWeights: map[string]HybridWeights{
			"ELIGIBILITY": {BM25: 0.5, Semantic: 0.5},
			"DISCOVERY":   {BM25: 0.3, Semantic: 0.7},
			"BENEFITS":    {BM25: 0.5, Semantic: 0.5},
			"COMPARISON":  {BM25: 0.4, Semantic: 0.6},
			"PROCEDURE":   {BM25: 0.45, Semantic: 0.55},
			"GENERAL":     {BM25: 0.4, Semantic: 0.6},
		},

		ThresholdFloor:      0.3,
		ThresholdMultiplier: 0.5,
		TopScoreRatio:       0.7,
		MinDocsRequired:     1,
		DefaultIntentCutoff: IntentThreshold{Floor: 0.4, Multiplier: 0.5},
		IntentCutoffs: map[string]IntentThreshold{
			"ELIGIBILITY": {Floor: 0.45, Multiplier: 0.3},
			"DISCOVERY":   {Floor: 0.35, Multiplier: 0.7},
			"COMPARISON":  {Floor: 0.4, Multiplier: 0.5},
			"BENEFITS":    {Floor: 0.45, Multiplier: 0.4},
			"PROCEDURE":   {Floor: 0.4, Multiplier: 0.5},
		},

		IntentTopK: map[string]int{
			"DISCOVERY":  8,
			"COMPARISON": 8,
		},
		IntentTheme: map[string]string{
			"ELIGIBILITY": "eligibility",
			"BENEFITS":    "benefits",
			"PROCEDURE":   "application-steps",
		},

		MinFilteredResults:      3,
		MaxReflectionIterations: 2,
		MaxCorrectionIterations: 2,
	}
}

// LoadTuning returns the defaults overlaid with the YAML file at path, when
// one is configured.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return tuning, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &tuning); err != nil {
		return tuning, fmt.Errorf("parse tuning yaml: %w", err)
	}
	return tuning.normalize(), nil
}

func (t Tuning) normalize() Tuning {
	def := DefaultTuning()
	if t.RRFK <= 0 {
		t.RRFK = def.RRFK
	}
	if t.DefaultTopK <= 0 {
		t.DefaultTopK = def.DefaultTopK
	}
	if t.FuzzyCutoff <= 0 || t.FuzzyCutoff > 100 {
		t.FuzzyCutoff = def.FuzzyCutoff
	}
	if t.EntitySampleMax <= 0 {
		t.EntitySampleMax = def.EntitySampleMax
	}
	if t.RRFBlendRRF <= 0 {
		t.RRFBlendRRF = def.RRFBlendRRF
	}
	if t.RRFBlendVector < 0 {
		t.RRFBlendVector = def.RRFBlendVector
	}
	if t.FilteredBoost < 0 {
		t.FilteredBoost = def.FilteredBoost
	}
	if t.ThresholdFloor <= 0 {
		t.ThresholdFloor = def.ThresholdFloor
	}
	if t.ThresholdMultiplier <= 0 {
		t.ThresholdMultiplier = def.ThresholdMultiplier
	}
	if t.TopScoreRatio <= 0 {
		t.TopScoreRatio = def.TopScoreRatio
	}
	if t.MinDocsRequired <= 0 {
		t.MinDocsRequired = def.MinDocsRequired
	}
	if t.MinFilteredResults <= 0 {
		t.MinFilteredResults = def.MinFilteredResults
	}
	if t.MaxReflectionIterations <= 0 {
		t.MaxReflectionIterations = def.MaxReflectionIterations
	}
	if t.MaxCorrectionIterations <= 0 {
		t.MaxCorrectionIterations = def.MaxCorrectionIterations
	}
	return t
}

// WeightsFor returns the fusion weights for an intent, falling back to the
// default pair.
func (t Tuning) WeightsFor(intent string) HybridWeights {
	if w, ok := t.IntentWeights[intent]; ok {
		return w
	}
	return t.DefaultWeights
}

// CutoffFor returns the per-intent threshold parameters.
func (t Tuning) CutoffFor(intent string) IntentThreshold {
	if c, ok := t.IntentCutoffs[intent]; ok {
		return c
	}
	return t.DefaultIntentCutoff
}

// TopKFor returns the per-intent result count, or the default.
func (t Tuning) TopKFor(intent string) int {
	if k, ok := t.IntentTopK[intent]; ok && k > 0 {
		return k
	}
	return t.DefaultTopK
}

// ThemeFor maps an intent to a theme filter; empty means no theme filter.
func (t Tuning) ThemeFor(intent string) string {
	return t.IntentTheme[intent]
}
