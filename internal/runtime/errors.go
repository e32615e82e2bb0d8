package runtime

import "errors"

// ErrDatasetLimit indicates every open-dataset slot is taken.
var ErrDatasetLimit = errors.New("runtime: open dataset limit reached")

// ErrRowLimit indicates an inline payload above the per-operation row cap.
var ErrRowLimit = errors.New("runtime: row limit exceeded")
