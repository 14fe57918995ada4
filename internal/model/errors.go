package model

import "errors"

// Error kinds shared across the pipeline. Call sites wrap these with eris
// so errors.Is still matches at the server and CLI boundaries.
var (
	// ErrConfiguration indicates a required credential or endpoint was
	// missing or invalid at the point a dependent call was made.
	ErrConfiguration = errors.New("configuration error")

	// ErrFetch indicates a document could not be retrieved from its URL.
	ErrFetch = errors.New("document fetch failed")

	// ErrExtractionService indicates the layout-extraction or completion
	// service failed or returned an error status.
	ErrExtractionService = errors.New("extraction service error")

	// ErrSuggestionParse indicates a model response could not be parsed
	// into the expected structure.
	ErrSuggestionParse = errors.New("suggestion response malformed")

	// ErrAnalysisPartial indicates one or more analysis artifact types
	// failed while others succeeded. Partial results are still returned.
	ErrAnalysisPartial = errors.New("analysis partially failed")

	// ErrExport indicates the export file could not be written.
	ErrExport = errors.New("export failed")

	// ErrTimeout indicates an external call exceeded its deadline.
	ErrTimeout = errors.New("external call timed out")
)
