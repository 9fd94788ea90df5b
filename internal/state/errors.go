package state

import "errors"

// ErrNotFound is returned by lookups for tokens or room ids with no record.
var ErrNotFound = errors.New("state: not found")
