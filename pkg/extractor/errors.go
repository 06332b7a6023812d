package extractor

import "fmt"

// ExtractionError is a non-retryable failure to read a document
type ExtractionError struct {
	Format  string
	Message string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed: %s", e.Format, e.Message)
}
