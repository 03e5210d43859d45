package qualitygate

import (
	"fmt"
	"strings"
)

// GateConfig selects and tunes the quality gates. Ratio thresholds of 1
// or more disable the corresponding gate.
type GateConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	ModelRequired bool `mapstructure:"model_required" json:"model_required"`

	MaxUnknownHandlerRatio float64 `mapstructure:"max_unknown_handler_ratio" json:"max_unknown_handler_ratio"`
	UnknownHandlerSeverity string  `mapstructure:"unknown_handler_severity" json:"unknown_handler_severity"`

	MaxDanglingEdgeRatio float64 `mapstructure:"max_dangling_edge_ratio" json:"max_dangling_edge_ratio"`
	DanglingEdgeSeverity string  `mapstructure:"dangling_edge_severity" json:"dangling_edge_severity"`

	MaxUnclassifiedDependencies int    `mapstructure:"max_unclassified_dependencies" json:"max_unclassified_dependencies"`
	UnclassifiedSeverity        string `mapstructure:"unclassified_severity" json:"unclassified_severity"`

	OrphanResources bool `mapstructure:"orphan_resources" json:"orphan_resources"`
}

// DefaultConfig returns the default gate thresholds.
func DefaultConfig() *GateConfig {
	return &GateConfig{
		Enabled:                     true,
		ModelRequired:               true,
		MaxUnknownHandlerRatio:      0.25,
		UnknownHandlerSeverity:      "required",
		MaxDanglingEdgeRatio:        0.1,
		DanglingEdgeSeverity:        "required",
		MaxUnclassifiedDependencies: 0,
		UnclassifiedSeverity:        "advisory",
		OrphanResources:             true,
	}
}

// parseSeverity maps a config string to a GateSeverity, defaulting to
// required for unknown values.
func parseSeverity(s string) GateSeverity {
	switch s {
	case "critical":
		return SeverityCritical
	case "advisory":
		return SeverityAdvisory
	default:
		return SeverityRequired
	}
}

// BuildPipeline assembles the gate pipeline from config. Nil config gets
// the defaults.
func BuildPipeline(cfg *GateConfig) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := NewPipeline()
	if cfg.ModelRequired {
		p.AddGate(NewEmptyModelGate(SeverityCritical))
	}
	if cfg.MaxUnknownHandlerRatio < 1 {
		p.AddGate(NewUnknownHandlerGate(cfg.MaxUnknownHandlerRatio, parseSeverity(cfg.UnknownHandlerSeverity)))
	}
	if cfg.MaxDanglingEdgeRatio < 1 {
		p.AddGate(NewDanglingEdgeGate(cfg.MaxDanglingEdgeRatio, parseSeverity(cfg.DanglingEdgeSeverity)))
	}
	if cfg.MaxUnclassifiedDependencies >= 0 {
		p.AddGate(NewUnclassifiedDependencyGate(cfg.MaxUnclassifiedDependencies, parseSeverity(cfg.UnclassifiedSeverity)))
	}
	if cfg.OrphanResources {
		p.AddGate(NewOrphanResourceGate(SeverityAdvisory))
	}
	return p
}

func statusIcon(status GateStatus) string {
	switch status {
	case GateFailed:
		return "✗"
	case GateSkipped:
		return "○"
	case GateWarning:
		return "⚠"
	default:
		return "✓"
	}
}

func severityLabel(severity GateSeverity) string {
	switch severity {
	case SeverityCritical:
		return "[CRITICAL]"
	case SeverityRequired:
		return "[REQUIRED]"
	case SeverityAdvisory:
		return "[ADVISORY]"
	default:
		return ""
	}
}

// FormatReport renders the gate report box for terminal output.
func FormatReport(result *PipelineResult) string {
	var b strings.Builder
	b.WriteString("╔══════════════════════════════════════════╗\n")
	b.WriteString("║        Quality Gate Report               ║\n")
	b.WriteString("╠══════════════════════════════════════════╣\n")

	for _, gr := range result.Gates {
		fmt.Fprintf(&b, "║ %s %-14s %-10s %s\n",
			statusIcon(gr.Status), gr.Name, severityLabel(gr.Severity), gr.Message)
		for _, d := range gr.Details {
			fmt.Fprintf(&b, "║   → %s\n", d)
		}
	}

	b.WriteString("╠══════════════════════════════════════════╣\n")
	status := "PASSED"
	if result.Status == GateFailed {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "║ Result: %s (%s)\n", status, result.Summary)
	b.WriteString("╚══════════════════════════════════════════╝\n")
	return b.String()
}
