package ports

import (
	"context"

	"github.com/forPelevin/recut/internal/types"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Narrator returns one caption per selected clip, in selection order.
type Narrator interface {
	Narrate(ctx context.Context, sel types.SelectionResult) ([]string, error)
}

type BoundaryLookup interface {
	Boundaries(startMS, endMS int64) []types.WordSpan
}
