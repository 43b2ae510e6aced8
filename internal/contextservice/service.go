// Package contextservice coordinates ledger operations for the API and
// MCP layers and publishes change events.
package contextservice

import (
	"context"

	"github.com/starford/laguz/internal/ledger"
	"github.com/starford/laguz/internal/models"
)

// Publisher receives ledger change notifications. Satisfied by *sse.Broker.
type Publisher interface {
	PublishContextEvent(kind, contextID string)
	PublishAppendEvent(contextID string, count int, latestVersion int64)
}

// Service wraps the ledger store with event publication.
type Service struct {
	store  ledger.Store
	events Publisher
}

// NewService creates a new context service. events may be nil when no
// subscriber transport is running (e.g. the MCP stdio server).
func NewService(store ledger.Store, events Publisher) *Service {
	return &Service{store: store, events: events}
}

// CreateContext allocates a new empty context.
func (s *Service) CreateContext(ctx context.Context, name *string) (*models.Context, error) {
	c, err := s.store.CreateContext(ctx, name)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.PublishContextEvent("created", c.ID)
	}
	return c, nil
}

// GetContext returns a live context or apperr.ErrNotFound.
func (s *Service) GetContext(ctx context.Context, id string) (*models.Context, error) {
	return s.store.GetContext(ctx, id)
}

// DeleteContext tombstones a context and returns its final state.
func (s *Service) DeleteContext(ctx context.Context, id string) (*models.Context, error) {
	c, err := s.store.SoftDeleteContext(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.PublishContextEvent("deleted", c.ID)
	}
	return c, nil
}

// AppendMessages appends a batch to a context's ledger.
func (s *Service) AppendMessages(ctx context.Context, contextID string, batch []models.AppendMessage) ([]models.Message, error) {
	msgs, err := s.store.Append(ctx, contextID, batch)
	if err != nil {
		return nil, err
	}
	if s.events != nil && len(msgs) > 0 {
		s.events.PublishAppendEvent(contextID, len(msgs), msgs[len(msgs)-1].Version)
	}
	return msgs, nil
}

// ListMessages reads one page of a context's ledger.
func (s *Service) ListMessages(ctx context.Context, contextID string, opts models.PageOptions) (*models.Page, error) {
	return s.store.ListMessages(ctx, contextID, opts)
}

// GetWindow returns the token-budget-bounded trailing window.
func (s *Service) GetWindow(ctx context.Context, contextID string, budget float64) ([]models.Message, error) {
	return s.store.WindowByTokenBudget(ctx, contextID, budget)
}

// GetMessage returns a single ledger entry by version.
func (s *Service) GetMessage(ctx context.Context, contextID string, version int64) (*models.Message, error) {
	return s.store.GetMessage(ctx, contextID, version)
}
