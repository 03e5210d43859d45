// Package vector indexes compiled models as feature vectors so structurally
// similar models can be found by similarity search.
package vector

import "context"

// Document is one indexed model: a stable point ID, a human-readable
// summary, the feature vector produced by Featurize, and metadata for
// filtering results.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult is one similarity match, higher Score meaning closer.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

// Repository stores model vectors and answers nearest-neighbor queries.
// QdrantRepository is the production implementation.
type Repository interface {
	Upsert(ctx context.Context, docs []Document) error
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	Close() error
}
