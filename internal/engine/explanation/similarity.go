package explanation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/philippgille/chromem-go"
)

var errEmptyText = errors.New("text has no tokens")

const collectionName = "recommendation-rationales"

// similarityIndex finds previously explained recommendation texts by cosine similarity.
// It stores only the exact-store key of each text; the rationale lives in the exact store.
type similarityIndex struct {
	collection *chromem.Collection
	embedder   *HashingEmbedder
	threshold  float32
}

func newSimilarityIndex(embedder *HashingEmbedder, threshold float64) (*similarityIndex, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, embedder.Func())
	if err != nil {
		return nil, err
	}
	return &similarityIndex{collection: collection, embedder: embedder, threshold: float32(threshold)}, nil
}

// textKey is the exact-store key of a recommendation text.
func textKey(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return "text:" + hex.EncodeToString(sum[:8])
}

func (i *similarityIndex) add(ctx context.Context, text string) (string, error) {
	vec := i.embedder.Embed(text)
	if vec == nil {
		return "", errEmptyText
	}
	key := textKey(text)
	err := i.collection.AddDocument(ctx, chromem.Document{
		ID:        key,
		Content:   text,
		Embedding: vec,
	})
	return key, err
}

// nearest returns the key of the most similar indexed text at or above the threshold.
func (i *similarityIndex) nearest(ctx context.Context, text string) (string, float32, bool) {
	if i.collection.Count() == 0 {
		return "", 0, false
	}
	vec := i.embedder.Embed(text)
	if vec == nil {
		return "", 0, false
	}
	results, err := i.collection.QueryEmbedding(ctx, vec, 1, nil, nil)
	if err != nil || len(results) == 0 {
		return "", 0, false
	}
	best := results[0]
	if best.Similarity < i.threshold {
		return "", best.Similarity, false
	}
	return best.ID, best.Similarity, true
}

func (i *similarityIndex) remove(ctx context.Context, key string) error {
	return i.collection.Delete(ctx, nil, nil, key)
}
