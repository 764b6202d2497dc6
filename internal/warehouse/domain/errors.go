package domain

import "errors"

var (
	// ErrDimensionResolution marks a document whose dimension rows could not
	// be resolved. The run continues with the next document.
	ErrDimensionResolution = errors.New("dimension_resolution_failed")

	// ErrFactInsert marks a document whose fact rows could not be written.
	ErrFactInsert = errors.New("fact_insert_failed")

	// ErrInvalidDate marks a document carrying an unparseable creation date.
	ErrInvalidDate = errors.New("invalid_date")
)
