package transfer

import (
	"fmt"

	"github.com/ochronus/storageportal/internal/services/portal"
)

// Direction tells whether a job moves a file to or from the portal
type Direction int

const (
	DirectionUpload Direction = iota
	DirectionDownload
)

// String returns a string representation of the direction
func (d Direction) String() string {
	switch d {
	case DirectionUpload:
		return "upload"
	case DirectionDownload:
		return "download"
	default:
		return "unknown"
	}
}

// Job is one file to move. For uploads Path is read and Name is the remote
// filename (defaulting to the base name of Path). For downloads Name is
// fetched into Path.
type Job struct {
	Direction  Direction
	Name       string
	Path       string
	OnProgress portal.ProgressFunc
}

// String returns a formatted string representation of the job
func (j Job) String() string {
	return fmt.Sprintf("[%s: %s]", j.Direction, j.Name)
}

// Status represents the outcome of a job
type Status int

const (
	StatusDone Status = iota
	StatusFailed
	StatusSkipped
)

// String returns a string representation of the status
func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result reports what happened to one job.
type Result struct {
	Job      Job
	Status   Status
	Bytes    int64
	Attempts int
	Err      error
}
