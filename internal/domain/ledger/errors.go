package ledger

import "errors"

var (
	ErrUnknownBucket = errors.New("ledger: unknown bucket")
	ErrMissingRef    = errors.New("ledger: entry without reference")
)
