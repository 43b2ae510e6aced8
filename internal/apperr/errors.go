// Package apperr defines sentinel errors shared across layers.
//
// ErrDuplicate and ErrForeignKey map storage-level constraint violations;
// a duplicate (context_id, version) pair in particular indicates a locking
// defect in the append path and is never retried.
package apperr

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate")
	ErrForeignKey = errors.New("foreign key violation")
)
