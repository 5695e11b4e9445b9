package documents

import "context"

// Repo persists documents. Reads and deletes are scoped to the owner.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, ownerID, id string) (Document, error)
	// List returns the owner's documents newest first.
	List(ctx context.Context, ownerID string, filter Filter) ([]Document, error)
	// Update replaces doc only while the stored status equals expected.
	Update(ctx context.Context, doc Document, expected Status) error
	Delete(ctx context.Context, ownerID, id string) error
}
