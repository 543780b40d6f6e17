package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/recut/internal/ports"
	"github.com/forPelevin/recut/internal/types"
)

// Hit is one query result.
type Hit struct {
	CandidateID string
	Similarity  float64
}

// Index is an exact cosine index over candidate text embeddings.
// It is immutable after Build and safe for concurrent queries.
type Index struct {
	ids   []string
	vecs  [][]float64
	norms []float64
	pos   map[string]int
	dim   int
}

type Options struct {
	RunID   string
	Workers int
	Policy  CallPolicy
	Logger  zerolog.Logger
}

// Build embeds every candidate's text in parallel and indexes the vectors.
// Any embedding failure aborts the build; no partial index is returned.
func Build(ctx context.Context, emb ports.Embedder, cands []types.CandidateSegment, opts Options) (*Index, error) {
	if len(cands) == 0 {
		return nil, &types.EmptyCandidateSetError{RunID: opts.RunID, Stage: types.StageIndex}
	}
	if emb == nil {
		return nil, &types.IndexBuildError{RunID: opts.RunID, Stage: types.StageIndex, Err: errors.New("no embedder configured")}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	log := opts.Logger.With().Str("component", "index").Logger()

	vecs := make([][]float64, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range cands {
		i := i
		g.Go(func() error {
			c := cands[i]
			vec, attempts, err := Embed(gctx, emb, c.Text, opts.Policy)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &types.IndexBuildError{
					RunID:       opts.RunID,
					Stage:       types.StageIndex,
					CandidateID: c.CandidateID,
					Attempts:    attempts,
					Err:         err,
				}
			}
			if attempts > 1 {
				log.Debug().Str("candidate_id", c.CandidateID).Int("attempts", attempts).Msg("embedding retried")
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.CandidateID
	}
	ix, err := FromVectors(ids, vecs)
	if err != nil {
		return nil, &types.IndexBuildError{RunID: opts.RunID, Stage: types.StageIndex, Err: err}
	}
	log.Debug().Int("candidates", ix.Len()).Int("dim", ix.dim).Msg("index built")
	return ix, nil
}

// FromVectors indexes precomputed vectors. ids must be unique and vectors
// must share one dimension.
func FromVectors(ids []string, vecs [][]float64) (*Index, error) {
	if len(ids) == 0 {
		return nil, &types.EmptyCandidateSetError{Stage: types.StageIndex}
	}
	if len(ids) != len(vecs) {
		return nil, fmt.Errorf("index: %d ids for %d vectors", len(ids), len(vecs))
	}

	ix := &Index{
		ids:   make([]string, len(ids)),
		vecs:  make([][]float64, len(vecs)),
		norms: make([]float64, len(vecs)),
		pos:   make(map[string]int, len(ids)),
		dim:   len(vecs[0]),
	}
	for i, id := range ids {
		if _, dup := ix.pos[id]; dup {
			return nil, fmt.Errorf("index: duplicate candidate_id %q", id)
		}
		if len(vecs[i]) != ix.dim {
			return nil, fmt.Errorf("index: candidate %s has dimension %d, want %d", id, len(vecs[i]), ix.dim)
		}
		ix.ids[i] = id
		ix.vecs[i] = append([]float64(nil), vecs[i]...)
		ix.norms[i] = norm(vecs[i])
		ix.pos[id] = i
	}
	return ix, nil
}

func (ix *Index) Len() int { return len(ix.ids) }

func (ix *Index) Dim() int { return ix.dim }

func (ix *Index) Has(id string) bool {
	_, ok := ix.pos[id]
	return ok
}

// Query returns the k most similar candidates not in exclude, by
// descending cosine similarity with ties broken by ascending candidate_id.
// k <= 0 or k beyond the remaining pool returns every remaining candidate.
func (ix *Index) Query(vec []float64, k int, exclude map[string]struct{}) ([]Hit, error) {
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("index: query dimension %d, want %d", len(vec), ix.dim)
	}
	qn := norm(vec)

	hits := make([]Hit, 0, len(ix.ids))
	for i, id := range ix.ids {
		if _, skip := exclude[id]; skip {
			continue
		}
		hits = append(hits, Hit{CandidateID: id, Similarity: cosine(vec, qn, ix.vecs[i], ix.norms[i])})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].CandidateID < hits[j].CandidateID
	})

	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func cosine(a []float64, an float64, b []float64, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (an * bn)
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
