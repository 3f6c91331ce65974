package logger

import (
	"go.uber.org/zap"
)

func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}

// WithJob returns a logger with the job id attached, so every line emitted
// while processing a job can be correlated.
func WithJob(logger *zap.Logger, jobID string) *zap.Logger {
	if jobID == "" {
		return logger
	}
	return logger.With(zap.String("job_id", jobID))
}
