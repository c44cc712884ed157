// Package cleanup runs ordered teardown steps and reports how each went.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CleanupResult represents the result of a cleanup operation
type CleanupResult struct {
	Step     string        `json:"step"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// CleanupOperation represents a single cleanup step
type CleanupOperation struct {
	Name      string
	Executor  func(ctx context.Context) error
	OnSuccess func()
	OnError   func(error)
}

// CleanupManager executes operations in order. A failed step does not stop the ones after it.
type CleanupManager struct {
	logger    *slog.Logger
	startTime time.Time
	results   []CleanupResult
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(logger *slog.Logger) *CleanupManager {
	return &CleanupManager{
		logger:  logger,
		results: make([]CleanupResult, 0),
	}
}

// Run executes every operation and returns the last error seen, if any
func (cm *CleanupManager) Run(ctx context.Context, operations []CleanupOperation) ([]CleanupResult, error) {
	cm.startTime = time.Now()
	cm.results = make([]CleanupResult, 0, len(operations))

	var lastError error
	for _, operation := range operations {
		start := time.Now()
		err := operation.Executor(ctx)

		result := CleanupResult{
			Step:     operation.Name,
			Success:  err == nil,
			Duration: time.Since(start),
		}
		if err != nil {
			result.Error = err.Error()
			lastError = err
		}
		cm.results = append(cm.results, result)

		if err == nil {
			if operation.OnSuccess != nil {
				operation.OnSuccess()
			}
		} else if operation.OnError != nil {
			operation.OnError(err)
		}
	}

	success, failed, total := cm.GetSummary()
	cm.logger.Info("Cleanup completed",
		"totalSteps", len(operations),
		"successSteps", success,
		"failedSteps", failed,
		"totalDuration", total,
	)

	for _, result := range cm.results {
		if !result.Success {
			cm.logger.Error("Cleanup step failed",
				"step", result.Step,
				"error", result.Error,
				"duration", result.Duration,
			)
		}
	}

	if lastError != nil {
		return cm.results, fmt.Errorf("cleanup completed with errors: %w", lastError)
	}
	return cm.results, nil
}

// GetResults returns the cleanup results
func (cm *CleanupManager) GetResults() []CleanupResult {
	return cm.results
}

// GetSummary returns a summary of the cleanup operation
func (cm *CleanupManager) GetSummary() (int, int, time.Duration) {
	successCount := 0
	for _, result := range cm.results {
		if result.Success {
			successCount++
		}
	}
	return successCount, len(cm.results) - successCount, time.Since(cm.startTime)
}
