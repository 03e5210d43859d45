package vector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/simforge/simforge/internal/simmodel"
)

// Indexer featurizes compiled models and stores them in a vector
// repository.
type Indexer struct {
	repo Repository
}

// NewIndexer creates an Indexer.
func NewIndexer(repo Repository) *Indexer {
	return &Indexer{repo: repo}
}

// IndexModel upserts one compiled model. The point ID is derived from the
// model ID, so re-indexing the same model replaces its previous point.
func (ix *Indexer) IndexModel(ctx context.Context, modelID, source string, doc *simmodel.Document) error {
	docs := []Document{{
		ID:      PointID(modelID),
		Content: Summarize(doc),
		Vector:  Featurize(doc),
		Metadata: map[string]string{
			"model_id":    modelID,
			"source":      source,
			"activities":  strconv.Itoa(len(doc.Model.Activities)),
			"connections": strconv.Itoa(len(doc.Model.Connections)),
		},
	}}
	if err := ix.repo.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("index model %s: %w", modelID, err)
	}
	return nil
}

// SearchSimilar finds stored models structurally closest to doc.
func (ix *Indexer) SearchSimilar(ctx context.Context, doc *simmodel.Document, topK int) ([]SearchResult, error) {
	return ix.repo.Search(ctx, Featurize(doc), topK)
}

// PointID maps a model ID onto a stable UUID accepted as a Qdrant point ID.
func PointID(modelID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(modelID)).String()
}
