package task

import "context"

// HistoryRepository is the durable snapshot of terminal tasks.
type HistoryRepository interface {
	// ReplaceAll overwrites the stored snapshot with tasks.
	ReplaceAll(ctx context.Context, tasks []Task) error
	// FindAll returns the stored snapshot, most recent first.
	FindAll(ctx context.Context) ([]Task, error)
}
