package models

import "time"

// Role identifies the author type of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message is one immutable, versioned record within a context's log.
// Version is a positive integer, unique and gap-free per context.
type Message struct {
	ID        string `json:"id"`
	ContextID string `json:"contextId"`
	Version   int64  `json:"version"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	// TokenCount is nil when unknown; aggregate and window arithmetic
	// treats nil as zero.
	TokenCount *int64     `json:"tokenCount"`
	ToolCallID *string    `json:"toolCallId,omitempty"`
	ToolName   *string    `json:"toolName,omitempty"`
	Model      *string    `json:"model,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	// CompactedAt and CompactedIntoVersion are reserved for message
	// compaction; nothing reads or writes them yet.
	CompactedAt          *time.Time `json:"compactedAt,omitempty"`
	CompactedIntoVersion *int64     `json:"compactedIntoVersion,omitempty"`
}

// Tokens returns the token count with nil treated as zero.
func (m *Message) Tokens() int64 {
	if m.TokenCount == nil {
		return 0
	}
	return *m.TokenCount
}

// AppendMessage is the caller-supplied input for one ledger entry.
// Versions are assigned by the ledger at insert time.
type AppendMessage struct {
	Role       Role    `json:"role"`
	Content    string  `json:"content"`
	TokenCount *int64  `json:"tokenCount,omitempty"`
	ToolCallID *string `json:"toolCallId,omitempty"`
	ToolName   *string `json:"toolName,omitempty"`
	Model      *string `json:"model,omitempty"`
}

// Page is one cursor-paginated slice of a context's ledger.
type Page struct {
	Data       []Message `json:"data"`
	NextCursor *int64    `json:"nextCursor"`
	HasMore    bool      `json:"hasMore"`
}

// Sort orders for paginated reads.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// PageOptions controls cursor pagination. Cursor is the version of the
// last item from the previous page; nil (or negative) means no bound.
type PageOptions struct {
	Cursor *int64
	Limit  int
	Order  string
}
