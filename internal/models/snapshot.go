package models

import "time"

// Snapshot is a point-in-time copy of a job's status record.
// It is never mutated after creation, so it is safe to hand to renderers.
type Snapshot struct {
	JobID      string
	Progress   float64
	StatusText string
	Stages     []string
	Report     *string
	FileData   FileData
	Error      *string
	UpdatedAt  time.Time
}

// Terminal reports whether the job has finished, successfully or not.
func (s Snapshot) Terminal() bool {
	return s.Progress >= 1.0 || s.Error != nil
}

// Failed reports whether the job ended with an error.
func (s Snapshot) Failed() bool {
	return s.Error != nil
}
