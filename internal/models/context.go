// Package models defines the domain types for Laguz.
package models

import "time"

// Context is a named, independently-owned, append-only log of messages.
//
// MessageCount, TotalTokens and LatestVersion are maintained by the ledger
// append path only, inside the same transaction as the message inserts, so
// they are always consistent with the ledger contents.
type Context struct {
	ID            string  `json:"id"`
	Name          *string `json:"name"`
	MessageCount  int64   `json:"messageCount"`
	TotalTokens   int64   `json:"totalTokens"`
	LatestVersion int64   `json:"latestVersion"`
	// ParentID and ForkVersion are reserved for context forking. No
	// operation reads or writes them; they pass through as opaque fields.
	ParentID    *string    `json:"parentId,omitempty"`
	ForkVersion *int64     `json:"forkVersion,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// Deleted reports whether the context carries a tombstone.
func (c *Context) Deleted() bool {
	return c.DeletedAt != nil
}
