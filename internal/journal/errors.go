package journal

import "errors"

// ErrDuplicateRecord is returned when a record with the same fingerprint has
// already been written. Callers treat it as a no-op.
var ErrDuplicateRecord = errors.New("journal: duplicate record fingerprint")
