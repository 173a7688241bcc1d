package comparison

import "errors"

var (
	ErrNotFound = errors.New("comparison run not found")
	// ErrNothingToCompare means the project has no comparable BOQ lines yet.
	ErrNothingToCompare = errors.New("no comparable bill-of-quantities items")
	ErrNoDetail         = errors.New("no schedule or drawing detail to compare against")
)
