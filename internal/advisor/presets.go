package advisor

import "renderd/pkg/geom"

// Base curve segments per tier for a balanced preview on standard hardware.
// Heavier tiers get fewer segments so previews stay interactive.
var baseSegments = map[geom.Tier]int{
	geom.TierSimple:   36,
	geom.TierStandard: 24,
	geom.TierComplex:  16,
	geom.TierExtreme:  8,
}

// Preset resolves (tier, hardwareLevel, levelName, usage) into concrete
// engine settings. Level "auto" must be resolved by the caller first
// (see Advisor.PreviewPreset).
func Preset(tier geom.Tier, hardwareLevel, level string, usage geom.Usage) geom.QualityPreset {
	base, ok := baseSegments[tier]
	if !ok {
		tier, base = geom.TierStandard, baseSegments[geom.TierStandard]
	}
	hw := normalizeHardware(hardwareLevel)
	switch hw {
	case "low":
		base = base * 2 / 3
	case "high":
		base = base * 3 / 2
	}

	p := geom.QualityPreset{Tier: tier, HardwareLevel: hw, Level: level, Usage: usage}
	if usage == geom.UsageExport {
		switch level {
		case geom.LevelLow:
			p.CurveSegments = base
		case geom.LevelMedium:
			p.CurveSegments = base * 2
		case geom.LevelHigh:
			p.CurveSegments = base * 4
		default:
			p.Level = geom.LevelDefault
			p.CurveSegments = base * 3
		}
		p.FragmentCap = p.CurveSegments * 4
		return p
	}

	switch level {
	case geom.LevelFast:
		p.CurveSegments = base / 2
		p.FastCSG = true
		p.SimplifyMesh = true
	case geom.LevelFidelity:
		p.CurveSegments = base * 2
	default:
		p.Level = geom.LevelBalanced
		p.CurveSegments = base
		p.FastCSG = tier == geom.TierExtreme
	}
	if p.CurveSegments < 4 {
		p.CurveSegments = 4
	}
	p.FragmentCap = p.CurveSegments * 4
	return p
}

// PreviewPreset resolves a user preview mode (fast/balanced/fidelity/auto)
// into a preset, consulting adaptive hints: an open fast window forces the
// fast preset regardless of the static classification.
func (a *Advisor) PreviewPreset(p geom.Project, hardwareLevel, level string, hints *Hints) geom.QualityPreset {
	cfg := a.AdaptiveQualityConfig(p, hardwareLevel)
	if hints != nil && hints.ForceFast() {
		return Preset(cfg.Tier, hardwareLevel, geom.LevelFast, geom.UsagePreview)
	}
	if level == "" || level == geom.LevelAuto {
		level = cfg.DefaultPreviewLevel
	}
	return Preset(cfg.Tier, hardwareLevel, level, geom.UsagePreview)
}

// ExportPreset resolves a user export mode (low/medium/high/default).
func (a *Advisor) ExportPreset(p geom.Project, hardwareLevel, level string) geom.QualityPreset {
	cfg := a.AdaptiveQualityConfig(p, hardwareLevel)
	if level == "" || level == geom.LevelDefault {
		level = cfg.DefaultExportLevel
	}
	return Preset(cfg.Tier, hardwareLevel, level, geom.UsageExport)
}
