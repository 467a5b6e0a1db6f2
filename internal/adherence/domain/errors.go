package adherence

import "errors"

// ErrDuplicateEvent indicates an append for an occurrence that was already
// recorded. The log stays append-only; duplicates are rejected, not merged.
var ErrDuplicateEvent = errors.New("adherence: duplicate event")
