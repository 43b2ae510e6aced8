package api

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/laguz/internal/models"
)

// CreateContextRequest is the request body for creating a context.
type CreateContextRequest struct {
	Name *string `json:"name" example:"support-chat"`
}

// Validate validates the create request.
func (r CreateContextRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(0, 255)),
	)
}

// AppendMessageInput is one message in an append request.
type AppendMessageInput struct {
	Role       models.Role `json:"role" example:"user"`
	Content    string      `json:"content" example:"Hello"`
	TokenCount *int64      `json:"tokenCount,omitempty" example:"5"`
	ToolCallID *string     `json:"toolCallId,omitempty"`
	ToolName   *string     `json:"toolName,omitempty"`
	Model      *string     `json:"model,omitempty"`
}

// Validate validates a single message input.
func (m AppendMessageInput) Validate() error {
	err := validation.ValidateStruct(&m,
		validation.Field(&m.Role, validation.Required,
			validation.In(models.RoleUser, models.RoleAssistant, models.RoleSystem, models.RoleTool)),
		validation.Field(&m.Content, validation.Required),
		validation.Field(&m.TokenCount, validation.Min(int64(0))),
	)
	if err != nil {
		return err
	}
	if m.Role == models.RoleTool && (m.ToolCallID == nil || *m.ToolCallID == "") {
		return errors.New("toolCallId is required when role is 'tool'")
	}
	return nil
}

// AppendMessagesRequest is the request body for appending messages.
type AppendMessagesRequest struct {
	Messages []AppendMessageInput `json:"messages"`
}

// Validate validates the append request; the batch must be non-empty at
// the API boundary (an empty batch never reaches the ledger).
func (r AppendMessagesRequest) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages: at least one message is required")
	}
	for i, m := range r.Messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	return nil
}

func (r AppendMessagesRequest) toBatch() []models.AppendMessage {
	batch := make([]models.AppendMessage, len(r.Messages))
	for i, m := range r.Messages {
		batch[i] = models.AppendMessage{
			Role:       m.Role,
			Content:    m.Content,
			TokenCount: m.TokenCount,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
			Model:      m.Model,
		}
	}
	return batch
}

// ContextDetail is the context response type (aliased from the domain layer).
type ContextDetail = models.Context

// MessageDetail is the message response type (aliased from the domain layer).
type MessageDetail = models.Message

// MessagePage is the paginated message list response.
type MessagePage = models.Page
