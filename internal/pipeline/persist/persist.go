package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/simforge/simforge/internal/graphstore"
	"github.com/simforge/simforge/internal/pipeline"
	"github.com/simforge/simforge/internal/session"
)

// Persist writes the compile run to the session store and, when a graph
// repository is configured, mirrors the model into it. Graph storage
// failures degrade to warnings; the session snapshot is the durable record.
type Persist struct{}

func New() *Persist { return &Persist{} }

func (p *Persist) Name() string { return "persist" }

func (p *Persist) Run(ctx context.Context, sc *pipeline.StageContext) (*pipeline.StageResult, error) {
	result := pipeline.NewStageResult()

	if sc.Doc == nil {
		result.Status = pipeline.StatusFailed
		result.AddError("persist: no compiled model")
		result.Finalize()
		return result, fmt.Errorf("persist: no compiled model")
	}
	if sc.Sessions == nil && sc.GraphDB == nil {
		result.SetPassthrough("no stores configured")
		result.Finalize()
		return result, nil
	}

	canonical, err := sc.Doc.Canonical()
	if err != nil {
		result.Status = pipeline.StatusFailed
		result.AddError(fmt.Sprintf("encoding model: %v", err))
		result.Finalize()
		return result, fmt.Errorf("encoding model: %w", err)
	}

	raw := sc.Raw
	if raw == nil && sc.Envelope != nil {
		raw, err = json.Marshal(sc.Envelope)
		if err != nil {
			result.Status = pipeline.StatusFailed
			result.AddError(fmt.Sprintf("encoding diagram: %v", err))
			result.Finalize()
			return result, fmt.Errorf("encoding diagram: %w", err)
		}
	}

	var sess *session.Session
	if sc.Sessions != nil {
		artifacts := []session.Artifact{
			{Name: session.ArtifactDiagram, Content: raw},
			{Name: session.ArtifactModel, Content: canonical},
		}
		if sc.GateReport != nil {
			report, err := json.Marshal(sc.GateReport)
			if err == nil {
				artifacts = append(artifacts, session.Artifact{Name: session.ArtifactReport, Content: report})
			}
		}
		result.Metrics.InputItems = len(artifacts)

		sess = session.New(sc.Source, sc.Format, session.StatsFor(sc.Index, sc.Doc), artifacts)
		if sc.GateReport != nil {
			sess.GateStatus = string(sc.GateReport.Status)
		}

		start := time.Now()
		err = sc.Sessions.Save(sess, artifacts)
		result.RecordStoreCall(time.Since(start))
		if err != nil {
			result.Status = pipeline.StatusFailed
			result.AddError(fmt.Sprintf("saving session: %v", err))
			result.Finalize()
			return result, fmt.Errorf("saving session: %w", err)
		}
		result.Metrics.OutputItems = len(artifacts)
		result.Metadata["session_id"] = sess.ID
		result.Metadata["fingerprint"] = sess.Fingerprint
	}

	if sc.GraphDB != nil {
		ref := graphstore.ModelRef{
			Source:     sc.Source,
			Format:     sc.Format,
			CompiledAt: time.Now(),
		}
		if sess != nil {
			ref.ID = sess.ID
			ref.Fingerprint = sess.Fingerprint
		} else {
			ref.ID = session.ContentHash(canonical)
			ref.Fingerprint = session.ContentHash(raw)
		}

		start := time.Now()
		err := sc.GraphDB.StoreModel(ctx, ref, sc.Doc)
		result.RecordStoreCall(time.Since(start))
		if err != nil {
			result.AddWarning(fmt.Sprintf("storing model graph: %v", err))
		} else {
			result.Metadata["graph_model_id"] = ref.ID
		}
	}

	result.Finalize()
	return result, nil
}
