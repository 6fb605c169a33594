package persistence

import "weex-grid-bot-go/internal/models"

// StateRepository abstracts the storage backend for the strategy state.
// The state is saved as a single versioned record with atomic replace
// semantics: a reader never observes a partially written record.
type StateRepository interface {
	// Save atomically replaces the stored state.
	Save(state *models.StrategyState) error

	// Load returns the stored state, or (nil, nil) when none exists.
	Load() (*models.StrategyState, error)

	// Erase removes the stored state. Erasing absent state is not an error.
	Erase() error

	// Close releases the backend.
	Close() error
}
