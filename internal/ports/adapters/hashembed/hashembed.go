package hashembed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const DefaultDim = 256

// Adapter embeds text by hashing unigrams and bigrams into a fixed number
// of signed buckets. Output is deterministic and needs no network.
type Adapter struct {
	dim int
}

func New(dim int) *Adapter {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Adapter{dim: dim}
}

func (a *Adapter) Dim() int { return a.dim }

func (a *Adapter) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, a.dim)
	toks := tokens(text)
	for i, t := range toks {
		a.add(vec, t, 1)
		if i > 0 {
			a.add(vec, toks[i-1]+" "+t, 0.5)
		}
	}

	var n float64
	for _, x := range vec {
		n += x * x
	}
	if n == 0 {
		return vec, nil
	}
	n = math.Sqrt(n)
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

func (a *Adapter) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(a.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
