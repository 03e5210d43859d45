// Package graphstore persists compiled models to a graph database so
// entities, activities and flows stay queryable across compile runs.
package graphstore

import (
	"context"
	"time"

	"github.com/simforge/simforge/internal/simmodel"
)

// ModelRef identifies one stored model.
type ModelRef struct {
	ID          string
	Source      string
	Format      string
	Fingerprint string
	CompiledAt  time.Time
}

// ModelSummary describes a stored model for listings.
type ModelSummary struct {
	ID         string
	Source     string
	CompiledAt time.Time
	Entities   int
	Activities int
}

// Repository provides graph storage for compiled models.
type Repository interface {
	// StoreModel persists a compiled model under ref.ID, replacing any
	// previous contents stored for that ID.
	StoreModel(ctx context.Context, ref ModelRef, doc *simmodel.Document) error
	// LoadModel reassembles a stored model. Slice order follows node
	// names, not authoring order.
	LoadModel(ctx context.Context, modelID string) (*simmodel.Document, error)
	// ListModels returns summaries of all stored models, newest first.
	ListModels(ctx context.Context) ([]ModelSummary, error)
	// QueryDownstream returns the activities reachable over one
	// connection from the given activity.
	QueryDownstream(ctx context.Context, modelID, activity string) ([]string, error)
	// QueryHandledBy returns the activities handled by the given entity.
	QueryHandledBy(ctx context.Context, modelID, entity string) ([]string, error)
	// DeleteModel removes a stored model and all its nodes.
	DeleteModel(ctx context.Context, modelID string) error
	// Close releases resources.
	Close(ctx context.Context) error
}
