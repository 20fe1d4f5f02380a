package geom

import "fmt"

// Tier is a coarse complexity classification of a source model.
type Tier string

const (
	TierSimple   Tier = "simple"
	TierStandard Tier = "standard"
	TierComplex  Tier = "complex"
	TierExtreme  Tier = "extreme"
)

// Usage distinguishes preview renders from export renders when resolving
// quality presets.
type Usage string

const (
	UsagePreview Usage = "preview"
	UsageExport  Usage = "export"
)

// Named quality levels accepted from the user. Preview levels map user
// intent; export levels map output fidelity.
const (
	LevelFast     = "fast"
	LevelBalanced = "balanced"
	LevelFidelity = "fidelity"
	LevelAuto     = "auto"

	LevelLow     = "low"
	LevelMedium  = "medium"
	LevelHigh    = "high"
	LevelDefault = "default"
)

// QualityPreset is the concrete bundle of engine tessellation settings a
// named level resolves to for a given tier and hardware class.
type QualityPreset struct {
	Tier          Tier   `json:"tier"`
	HardwareLevel string `json:"hardware_level"`
	Level         string `json:"level"`
	Usage         Usage  `json:"usage"`
	// Segments used to approximate curved surfaces.
	// example: 24
	CurveSegments int `json:"curve_segments" example:"24"`
	// Upper bound on fragments per curved primitive.
	// example: 64
	FragmentCap int `json:"fragment_cap" example:"64"`
	// Trade CSG exactness for speed.
	FastCSG bool `json:"fast_csg"`
	// Run a mesh simplification pass after rendering.
	SimplifyMesh bool `json:"simplify_mesh"`
}

// Identity is a stable string naming the preset for cache keys.
func (q QualityPreset) Identity() string {
	return fmt.Sprintf("%s/%s/%s/%s", q.Tier, q.HardwareLevel, q.Level, q.Usage)
}

// ComplexityProfile is the advisor's static classification of a source.
type ComplexityProfile struct {
	Tier Tier `json:"tier"`
	// Estimated count of curved-geometry constructs.
	// example: 14
	CurvedFeatures int `json:"curved_features" example:"14"`
	// Weighted complexity score.
	// example: 37
	Score int `json:"score" example:"37"`
	// Human-readable advisory warnings.
	Warnings []string `json:"warnings,omitempty"`
}
