package extraction

import "errors"

var (
	// ErrScheduleCodesRequired is reported on drawing jobs submitted before any
	// schedule has been extracted. The user resolves it by extracting a schedule.
	ErrScheduleCodesRequired = errors.New("drawings require schedule codes first")
	ErrUnknownKind           = errors.New("no extractor registered for file kind")
	ErrNoFiles               = errors.New("project has no files to extract")
)
