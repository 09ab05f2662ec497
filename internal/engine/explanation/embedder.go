package explanation

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/philippgille/chromem-go"
)

// HashingEmbedder maps text to a fixed-size vector by hashing its tokens into signed
// buckets. Equal token bags give equal vectors in every process.
type HashingEmbedder struct {
	dims int
}

func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashingEmbedder{dims: dims}
}

// Embed returns a unit vector, or nil when text has no tokens.
func (e *HashingEmbedder) Embed(text string) []float32 {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return nil
	}

	vec := make([]float32, e.dims)
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Func adapts the embedder to chromem.
func (e *HashingEmbedder) Func() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := e.Embed(text)
		if vec == nil {
			return nil, errEmptyText
		}
		return vec, nil
	}
}
