// Package temporal orchestrates fleet conversion: a batch workflow fans out
// per-diagram activities so a directory of canvas exports can be compiled,
// gated and persisted server-side with retries.
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// BatchConvertInput holds the workflow parameters. Paths are resolved by
// the starter; the workflow itself never touches the filesystem.
type BatchConvertInput struct {
	Paths     []string // diagram files to convert
	OutputDir string   // where converted models are written ("" to skip)
	SkipGates bool     // compile only, no quality gate evaluation
	Persist   bool     // save sessions (and graph refs) for each model
}

// DiagramOutcome captures the result of one diagram's conversion.
type DiagramOutcome struct {
	Path            string   `json:"path"`
	Source          string   `json:"source"`
	Fingerprint     string   `json:"fingerprint,omitempty"`
	OutputPath      string   `json:"output_path,omitempty"`
	SessionID       string   `json:"session_id,omitempty"`
	GateStatus      string   `json:"gate_status,omitempty"`
	Activities      int      `json:"activities"`
	Connections     int      `json:"connections"`
	UnknownHandlers int      `json:"unknown_handlers"`
	Warnings        []string `json:"warnings,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// BatchConvertOutput holds the workflow result.
type BatchConvertOutput struct {
	Converted  int              `json:"converted"`
	Failed     int              `json:"failed"`
	GateFailed int              `json:"gate_failed"`
	Outcomes   []DiagramOutcome `json:"outcomes"`
	Duration   time.Duration    `json:"duration"`
}

// BatchConvertWorkflow converts a fleet of diagrams. Conversion is fanned
// out in parallel; each diagram then flows through gating and persistence.
// A single bad diagram fails its own outcome, never the batch.
func BatchConvertWorkflow(ctx workflow.Context, input BatchConvertInput) (*BatchConvertOutput, error) {
	started := workflow.Now(ctx)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	output := &BatchConvertOutput{
		Outcomes: make([]DiagramOutcome, len(input.Paths)),
	}

	// Fan out conversion
	convertFutures := make([]workflow.Future, len(input.Paths))
	for i, path := range input.Paths {
		convertFutures[i] = workflow.ExecuteActivity(ctx, ConvertActivity, ConvertInput{
			Path:      path,
			OutputDir: input.OutputDir,
		})
	}

	converted := make([]ConvertResult, len(input.Paths))
	ok := make([]bool, len(input.Paths))
	for i, f := range convertFutures {
		outcome := &output.Outcomes[i]
		outcome.Path = input.Paths[i]

		var res ConvertResult
		if err := f.Get(ctx, &res); err != nil {
			outcome.Error = fmt.Sprintf("convert: %v", err)
			output.Failed++
			continue
		}
		converted[i] = res
		ok[i] = true

		outcome.Source = res.Source
		outcome.Fingerprint = res.Fingerprint
		outcome.OutputPath = res.OutputPath
		outcome.Activities = res.Activities
		outcome.Connections = res.Connections
		outcome.UnknownHandlers = res.UnknownHandlers
		outcome.Warnings = res.Warnings
		output.Converted++
	}

	// Gate the converted models
	reports := make([]string, len(input.Paths))
	if !input.SkipGates {
		gateFutures := make([]workflow.Future, len(input.Paths))
		for i := range input.Paths {
			if !ok[i] {
				continue
			}
			gateFutures[i] = workflow.ExecuteActivity(ctx, GateActivity, GateInput{
				Source:  converted[i].Source,
				Format:  converted[i].Format,
				Diagram: converted[i].Diagram,
			})
		}
		for i, f := range gateFutures {
			if f == nil {
				continue
			}
			outcome := &output.Outcomes[i]

			var gr GateSummary
			if err := f.Get(ctx, &gr); err != nil {
				outcome.Error = fmt.Sprintf("gate: %v", err)
				continue
			}
			outcome.GateStatus = gr.Status
			reports[i] = gr.Report
			if gr.Status == "failed" {
				output.GateFailed++
			}
		}
	}

	// Persist sessions
	if input.Persist {
		persistFutures := make([]workflow.Future, len(input.Paths))
		for i := range input.Paths {
			if !ok[i] || output.Outcomes[i].Error != "" {
				continue
			}
			persistFutures[i] = workflow.ExecuteActivity(ctx, PersistActivity, PersistInput{
				Source:  converted[i].Source,
				Format:  converted[i].Format,
				Diagram: converted[i].Diagram,
				Report:  reports[i],
			})
		}
		for i, f := range persistFutures {
			if f == nil {
				continue
			}
			outcome := &output.Outcomes[i]

			var pr PersistResult
			if err := f.Get(ctx, &pr); err != nil {
				outcome.Error = fmt.Sprintf("persist: %v", err)
				continue
			}
			outcome.SessionID = pr.SessionID
		}
	}

	output.Duration = workflow.Now(ctx).Sub(started)
	return output, nil
}
