package analytics

import "errors"

// ErrInvalidInput reports a caller contract violation, such as an unknown
// comparison mode. Malformed individual sessions never produce it.
var ErrInvalidInput = errors.New("invalid analytics input")
