package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"clip-compiler/internal/compile"
	"clip-compiler/internal/logging"
	"clip-compiler/internal/model"
)

// Worker decodes compilation requests off the queue and drives the
// orchestrator, one job at a time.
type Worker struct {
	orch *compile.Orchestrator
	log  *logging.Logger
}

func NewWorker(orch *compile.Orchestrator, log *logging.Logger) *Worker {
	return &Worker{orch: orch, log: log}
}

// Handle processes one queue message. The returned error is informational;
// terminal status has already been reported by the orchestrator.
func (w *Worker) Handle(ctx context.Context, key, value []byte) error {
	var req model.CompilationRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return fmt.Errorf("decode compilation request (key=%s): %w", key, err)
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}

	w.log.Infof("worker: starting job %s (project=%d, clips=%d)", req.JobID, req.ProjectID, len(req.Clips))
	if _, err := w.orch.Run(ctx, req); err != nil {
		return fmt.Errorf("job %s: %w", req.JobID, err)
	}
	return nil
}
