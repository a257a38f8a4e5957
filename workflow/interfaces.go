package workflow

import (
	"context"

	"stock-council/models"
)

// ReferenceFetcher loads the quote and news a run is grounded on.
// A nil result with a nil error means the symbol was not found.
type ReferenceFetcher interface {
	Fetch(ctx context.Context, symbol, credential string) (*models.ReferenceData, error)
}

// ContextFormatter renders reference data into the prompt context string.
type ContextFormatter interface {
	Format(data *models.ReferenceData) string
}

// StageExecutor runs every role of one stage and returns their outputs keyed by role.
type StageExecutor interface {
	Execute(ctx context.Context, input models.StageInput) (map[models.Role]string, error)
}

// SnapshotClearer deletes the persisted snapshot on reset.
type SnapshotClearer interface {
	Clear(ctx context.Context) error
}

// Publisher receives every intermediate state of a run.
type Publisher func(models.RunState)

// Stages are the four executors run in order after the fetch.
type Stages struct {
	Analysts StageExecutor
	Managers StageExecutor
	Risk     StageExecutor
	Decision StageExecutor
}
