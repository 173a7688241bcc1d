package files

import "errors"

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidKind = errors.New("file kind must be drawing, schedule or boq")
	ErrFileBusy    = errors.New("file has an extraction in progress")
)
