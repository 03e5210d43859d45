package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker starts a worker on taskQueue with the batch conversion
// workflow and its activities registered.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(BatchConvertWorkflow)
	for _, a := range []any{ConvertActivity, GateActivity, PersistActivity} {
		w.RegisterActivity(a)
	}

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("start worker on %s: %w", taskQueue, err)
	}
	return w, nil
}
