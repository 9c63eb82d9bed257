// Package sinks contains Sink implementations for the progress hub.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/progress"
)

// Log writes progress events through a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog constructs a logging sink.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Consume logs each event at the level its stage warrants.
func (s *Log) Consume(_ context.Context, events []progress.Event) error {
	for _, e := range events {
		fields := []zap.Field{
			zap.String("run_id", e.RunID),
			zap.String("stage", string(e.Stage)),
			zap.Int("completed", e.Completed),
			zap.Int("total", e.Total),
		}
		if e.TaskID != "" {
			fields = append(fields, zap.String("task_id", e.TaskID), zap.String("task_status", e.TaskStatus))
		}
		if e.Note != "" {
			fields = append(fields, zap.String("note", e.Note))
		}
		switch e.Stage {
		case progress.StageRunError:
			s.logger.Warn("run progress", fields...)
		case progress.StageTaskDone:
			s.logger.Debug("run progress", fields...)
		default:
			s.logger.Info("run progress", fields...)
		}
	}
	return nil
}
