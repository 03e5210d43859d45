package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/simforge/simforge/internal/formats"
	"github.com/simforge/simforge/internal/graphstore"
	"github.com/simforge/simforge/internal/pipeline"
	"github.com/simforge/simforge/internal/pipeline/audit"
	"github.com/simforge/simforge/internal/pipeline/gate"
	"github.com/simforge/simforge/internal/pipeline/index"
	"github.com/simforge/simforge/internal/pipeline/ingest"
	"github.com/simforge/simforge/internal/pipeline/lower"
	"github.com/simforge/simforge/internal/pipeline/persist"
	"github.com/simforge/simforge/internal/qualitygate"
	"github.com/simforge/simforge/internal/session"
	"github.com/simforge/simforge/internal/vector"
)

// ConvertInput identifies one diagram for conversion.
type ConvertInput struct {
	Path      string // diagram file on the worker host
	OutputDir string // write <name>.model.json here ("" to skip)
}

// ConvertResult is the serializable result passed between activities. The
// raw diagram rides along so later activities need no filesystem access.
type ConvertResult struct {
	Source          string   `json:"source"`
	Format          string   `json:"format"`
	Diagram         string   `json:"diagram"`
	Model           string   `json:"model"`
	Fingerprint     string   `json:"fingerprint"`
	OutputPath      string   `json:"output_path,omitempty"`
	Activities      int      `json:"activities"`
	Connections     int      `json:"connections"`
	UnknownHandlers int      `json:"unknown_handlers"`
	Warnings        []string `json:"warnings,omitempty"`
}

// GateInput carries a converted diagram into gate evaluation.
type GateInput struct {
	Source  string `json:"source"`
	Format  string `json:"format"`
	Diagram string `json:"diagram"`
}

// GateSummary is the serializable gate outcome.
type GateSummary struct {
	Status   string `json:"status"`
	Passed   int    `json:"passed"`
	Failed   int    `json:"failed"`
	Warnings int    `json:"warnings"`
	Report   string `json:"report"` // full PipelineResult as JSON
}

// PersistInput carries a converted diagram into session persistence.
type PersistInput struct {
	Source  string `json:"source"`
	Format  string `json:"format"`
	Diagram string `json:"diagram"`
	Report  string `json:"report,omitempty"` // gate report JSON, if gated
}

// PersistResult reports where a model was stored.
type PersistResult struct {
	SessionID   string `json:"session_id,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Registry *formats.Registry
	Sessions *session.Store
	Graph    graphstore.Repository
	Vectors  *vector.Indexer
	Gates    *qualitygate.Pipeline
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

func registry() *formats.Registry {
	if deps != nil && deps.Registry != nil {
		return deps.Registry
	}
	return formats.Default()
}

// compileDiagram decodes in-memory diagram bytes and runs the ingest and
// lower stages, returning the populated stage context and any warnings.
func compileDiagram(ctx context.Context, source, format, diagramJSON string) (*pipeline.StageContext, []string, error) {
	reg := registry()
	dec, err := reg.Decoder(format)
	if err != nil {
		return nil, nil, err
	}
	env, err := dec.Decode(source, []byte(diagramJSON))
	if err != nil {
		return nil, nil, fmt.Errorf("decoding %s: %w", source, err)
	}

	sc := &pipeline.StageContext{
		Raw:      []byte(diagramJSON),
		Envelope: env,
		Source:   source,
		Format:   format,
		Registry: reg,
		Params:   make(map[string]string),
	}
	if deps != nil {
		sc.Sessions = deps.Sessions
		sc.GraphDB = deps.Graph
		sc.Vectors = deps.Vectors
		sc.Gates = deps.Gates
	}

	var warnings []string
	for _, stage := range []pipeline.Stage{ingest.New(), lower.New()} {
		result, runErr := stage.Run(ctx, sc)
		if result != nil {
			warnings = append(warnings, result.Warnings...)
		}
		if runErr != nil {
			return nil, warnings, fmt.Errorf("stage %s: %w", stage.Name(), runErr)
		}
	}
	return sc, warnings, nil
}

// ConvertActivity compiles one diagram file into a model document.
func ConvertActivity(ctx context.Context, input ConvertInput) (ConvertResult, error) {
	sc := &pipeline.StageContext{
		Registry: registry(),
		Params:   map[string]string{"input": input.Path},
	}

	var warnings []string
	for _, stage := range []pipeline.Stage{ingest.New(), lower.New(), audit.New()} {
		result, err := stage.Run(ctx, sc)
		if result != nil {
			warnings = append(warnings, result.Warnings...)
		}
		if err != nil {
			return ConvertResult{}, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
	}

	model, err := sc.Doc.Canonical()
	if err != nil {
		return ConvertResult{}, fmt.Errorf("rendering model: %w", err)
	}

	res := ConvertResult{
		Source:          filepath.Base(sc.Source),
		Format:          sc.Format,
		Diagram:         string(sc.Raw),
		Model:           string(model),
		Fingerprint:     session.ContentHash(sc.Raw),
		Activities:      len(sc.Doc.Model.Activities),
		Connections:     len(sc.Doc.Model.Connections),
		UnknownHandlers: sc.Doc.Model.UnknownHandlerCount(),
		Warnings:        warnings,
	}

	if input.OutputDir != "" {
		if err := os.MkdirAll(input.OutputDir, 0o755); err != nil {
			return ConvertResult{}, fmt.Errorf("creating output dir: %w", err)
		}
		base := strings.TrimSuffix(filepath.Base(input.Path), filepath.Ext(input.Path))
		outPath := filepath.Join(input.OutputDir, base+".model.json")
		if err := os.WriteFile(outPath, model, 0o644); err != nil {
			return ConvertResult{}, fmt.Errorf("writing model: %w", err)
		}
		res.OutputPath = outPath
	}

	return res, nil
}

// GateActivity evaluates the quality gates for a converted diagram.
func GateActivity(ctx context.Context, input GateInput) (GateSummary, error) {
	sc, _, err := compileDiagram(ctx, input.Source, input.Format, input.Diagram)
	if err != nil {
		return GateSummary{}, err
	}

	if _, err := gate.New().Run(ctx, sc); err != nil {
		return GateSummary{}, fmt.Errorf("stage gate: %w", err)
	}
	pr := sc.GateReport
	if pr == nil {
		return GateSummary{}, fmt.Errorf("gate stage produced no report for %s", input.Source)
	}

	report, err := json.Marshal(pr)
	if err != nil {
		return GateSummary{}, fmt.Errorf("marshaling gate report: %w", err)
	}

	return GateSummary{
		Status:   string(pr.Status),
		Passed:   pr.PassedCount,
		Failed:   pr.FailedCount,
		Warnings: pr.WarningCount,
		Report:   string(report),
	}, nil
}

// PersistActivity saves a converted diagram as a session (and graph ref,
// vector point when those stores are configured).
func PersistActivity(ctx context.Context, input PersistInput) (PersistResult, error) {
	sc, _, err := compileDiagram(ctx, input.Source, input.Format, input.Diagram)
	if err != nil {
		return PersistResult{}, err
	}

	if input.Report != "" {
		var pr qualitygate.PipelineResult
		if err := json.Unmarshal([]byte(input.Report), &pr); err != nil {
			return PersistResult{}, fmt.Errorf("decoding gate report: %w", err)
		}
		sc.GateReport = &pr
	}

	for _, stage := range []pipeline.Stage{persist.New(), index.New()} {
		result, runErr := stage.Run(ctx, sc)
		if result != nil {
			if id := result.Metadata["session_id"]; id != "" {
				sc.Params["session_id"] = id
			}
		}
		if runErr != nil {
			return PersistResult{}, fmt.Errorf("stage %s: %w", stage.Name(), runErr)
		}
	}

	return PersistResult{
		SessionID:   sc.Params["session_id"],
		Fingerprint: session.ContentHash(sc.Raw),
	}, nil
}
