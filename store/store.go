package store

import (
	"context"

	"github.com/Wyndegarde/Maters-Project/utils"
)

// Store persists weight checkpoints and simulation traces keyed by run ID.
type Store interface {
	Init(ctx context.Context) error
	SaveWeights(ctx context.Context, runID string, weights *utils.ModelWeights) error
	GetWeights(ctx context.Context, runID string) (*utils.ModelWeights, bool, error)
	SaveTrace(ctx context.Context, runID string, trace TraceRecord) error
	GetTrace(ctx context.Context, runID string) (TraceRecord, bool, error)
}
