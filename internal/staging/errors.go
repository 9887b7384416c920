package staging

import "fmt"

// StagingError reports which upload made staging fail.
// Staging is all-or-nothing, so no paths accompany it.
type StagingError struct {
	Upload string
	Err    error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Upload, e.Err)
}

func (e *StagingError) Unwrap() error {
	return e.Err
}
