package documents

import "errors"

// Domain errors for dedup document operations.
var (
	ErrNotFound  = errors.New("dedup document not found")
	ErrDuplicate = errors.New("dedup document already exists")
	ErrEmptyKey  = errors.New("dedup key has no classification fields")
)
