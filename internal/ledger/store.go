package ledger

import (
	"context"

	"github.com/starford/laguz/internal/models"
)

// Store defines the interface for ledger operations. Consumers should
// depend on this interface rather than the concrete *DB type to facilitate
// testing with mocks.
type Store interface {
	CreateContext(ctx context.Context, name *string) (*models.Context, error)
	GetContext(ctx context.Context, id string) (*models.Context, error)
	SoftDeleteContext(ctx context.Context, id string) (*models.Context, error)
	ContextExists(ctx context.Context, id string) (bool, error)
	Append(ctx context.Context, contextID string, batch []models.AppendMessage) ([]models.Message, error)
	ListMessages(ctx context.Context, contextID string, opts models.PageOptions) (*models.Page, error)
	WindowByTokenBudget(ctx context.Context, contextID string, budget float64) ([]models.Message, error)
	GetMessage(ctx context.Context, contextID string, version int64) (*models.Message, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
