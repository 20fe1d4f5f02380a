// Package advisor classifies source complexity and resolves named quality
// levels into concrete engine presets. Analysis is static text heuristics:
// gauging complexity must not cost a compile, and heavier models should
// default to faster previews unless the user overrides.
package advisor

import (
	"fmt"
	"strings"
	"sync"

	"renderd/pkg/geom"
)

// Curved-geometry constructs the heuristic counts. Each occurrence implies
// tessellation work proportional to the active fragment settings.
var curvedConstructs = []string{
	"sphere", "cylinder", "circle", "rotate_extrude", "linear_extrude",
	"minkowski", "hull", "offset",
}

// Score weights.
const (
	curvedWeight    = 2
	loopWeight      = 3
	sizePerKB       = 1
	highFnThreshold = 100
)

// Tier boundaries on the weighted score.
const (
	standardScore = 20
	complexScore  = 60
	extremeScore  = 150
)

// Advisor memoizes complexity profiles per source signature.
type Advisor struct {
	mu   sync.Mutex
	memo map[string]geom.ComplexityProfile
}

func New() *Advisor {
	return &Advisor{memo: make(map[string]geom.ComplexityProfile)}
}

// AnalyzeComplexity classifies the project source into a tier with
// warnings. Memoized by source signature.
func (a *Advisor) AnalyzeComplexity(p geom.Project) geom.ComplexityProfile {
	sig := p.SourceSignature()
	a.mu.Lock()
	if prof, ok := a.memo[sig]; ok {
		a.mu.Unlock()
		return prof
	}
	a.mu.Unlock()

	prof := analyze(p.Source)
	a.mu.Lock()
	a.memo[sig] = prof
	a.mu.Unlock()
	return prof
}

func analyze(source string) geom.ComplexityProfile {
	curved := 0
	for _, c := range curvedConstructs {
		curved += strings.Count(source, c+"(")
	}
	loops := strings.Count(source, "for(") + strings.Count(source, "for (")
	score := curved*curvedWeight + loops*loopWeight + len(source)/1024*sizePerKB

	var warnings []string
	if fn := maxFragmentSetting(source); fn >= highFnThreshold {
		score += fn / 10
		warnings = append(warnings, fmt.Sprintf("very high fragment count detected ($fn=%d)", fn))
	}
	if loops > 0 && curved > 0 {
		// curved primitives inside loops multiply tessellation cost
		score += curved * loops
	}

	tier := geom.TierSimple
	switch {
	case score >= extremeScore:
		tier = geom.TierExtreme
		warnings = append(warnings, "model is extremely heavy; previews default to fast quality")
	case score >= complexScore:
		tier = geom.TierComplex
	case score >= standardScore:
		tier = geom.TierStandard
	}
	return geom.ComplexityProfile{Tier: tier, CurvedFeatures: curved, Score: score, Warnings: warnings}
}

// maxFragmentSetting finds the largest $fn=N assignment in the source.
func maxFragmentSetting(source string) int {
	max := 0
	rest := source
	for {
		i := strings.Index(rest, "$fn")
		if i < 0 {
			break
		}
		rest = rest[i+3:]
		j := strings.IndexByte(rest, '=')
		if j < 0 || j > 2 {
			continue
		}
		n := 0
		seen := false
		for _, r := range rest[j+1:] {
			if r == ' ' && !seen {
				continue
			}
			if r < '0' || r > '9' {
				break
			}
			n = n*10 + int(r-'0')
			seen = true
		}
		if n > max {
			max = n
		}
	}
	return max
}

// QualityConfig is the advisor's default recommendation for a project.
type QualityConfig struct {
	Tier               geom.Tier
	DefaultPreviewLevel string
	DefaultExportLevel  string
}

// AdaptiveQualityConfig resolves tier-appropriate default levels for the
// given hardware class.
func (a *Advisor) AdaptiveQualityConfig(p geom.Project, hardwareLevel string) QualityConfig {
	prof := a.AnalyzeComplexity(p)
	cfg := QualityConfig{Tier: prof.Tier, DefaultPreviewLevel: geom.LevelBalanced, DefaultExportLevel: geom.LevelHigh}
	switch prof.Tier {
	case geom.TierComplex:
		cfg.DefaultPreviewLevel = geom.LevelFast
		cfg.DefaultExportLevel = geom.LevelMedium
	case geom.TierExtreme:
		cfg.DefaultPreviewLevel = geom.LevelFast
		cfg.DefaultExportLevel = geom.LevelMedium
	}
	if normalizeHardware(hardwareLevel) == "low" && cfg.DefaultPreviewLevel == geom.LevelBalanced {
		cfg.DefaultPreviewLevel = geom.LevelFast
	}
	return cfg
}

func normalizeHardware(hw string) string {
	switch hw {
	case "low", "high":
		return hw
	default:
		return "standard"
	}
}
