package sinks

import (
	"context"

	"github.com/wrenlabs/quill/internal/metrics"
	"github.com/wrenlabs/quill/internal/progress"
)

// Prometheus mirrors run progress into the metrics registry.
type Prometheus struct{}

// NewPrometheus constructs the metrics sink.
func NewPrometheus() *Prometheus {
	return &Prometheus{}
}

// Consume updates the per-run completion gauge and clears it on terminal
// stages so finished runs do not linger as stale series.
func (s *Prometheus) Consume(_ context.Context, events []progress.Event) error {
	for _, e := range events {
		switch e.Stage {
		case progress.StageTaskDone:
			metrics.RunProgress(e.RunID, e.Completed)
		case progress.StageRunDone, progress.StageRunError:
			metrics.RunProgressDone(e.RunID)
		}
	}
	return nil
}
