package history

import "context"

// Store persists conversations keyed by id.
type Store interface {
	// Put stores c under id. An empty id creates a new conversation and the
	// generated id is returned.
	Put(ctx context.Context, id string, c *Conversation) (string, error)
	Get(ctx context.Context, id string) (*Conversation, bool, error)
	List(ctx context.Context) (History, error)
	// Delete removes id. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, id string, name string) error
	Clear(ctx context.Context) error
	Close() error
}
