package engine

import "github.com/robalyx/marginalia/internal/engine/core"

// Errors returned by engine operations. Callers test them with errors.Is.
var (
	ErrContentUnavailable = core.ErrContentUnavailable
	ErrInvalidInput       = core.ErrInvalidInput
	ErrTransientConflict  = core.ErrTransientConflict
	ErrStorageUnavailable = core.ErrStorageUnavailable
)
