package queue

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// canTransition enforces queued → processing → {completed | failed}.
func canTransition(from, to JobStatus) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

var (
	// ErrNotFound is returned for unknown or expired job ids.
	ErrNotFound = errors.New("job not found")
	// ErrNotReady is returned when a result is requested before completion.
	ErrNotReady = errors.New("job not finished yet")
	// ErrJobActive is returned when removing a job that is still running.
	ErrJobActive = errors.New("job is still active")
	// ErrInvalidTransition is returned for writes that break the state machine.
	ErrInvalidTransition = errors.New("invalid job state transition")
	// ErrDuplicateID is returned when a job id is already registered.
	ErrDuplicateID = errors.New("duplicate job id")
	// ErrTimeout marks jobs stopped by the watchdog.
	ErrTimeout = errors.New("processing timed out")
	// ErrShuttingDown marks jobs interrupted by service shutdown.
	ErrShuttingDown = errors.New("service shutting down")
)

// Options is the per-request snapshot taken at submission. Later config
// changes never affect a job that has already been accepted.
type Options struct {
	MaxWords        int  `json:"max_words"`
	MaxWordsLimit   int  `json:"max_words_limit"`
	SplitOnSegments bool `json:"split_on_segments"`
}

// Job represents one upload's transcription lifecycle.
type Job struct {
	ID       string    `json:"id"`
	Status   JobStatus `json:"status"`
	FileName string    `json:"file_name"`
	FileSize int64     `json:"file_size"`
	Options  Options   `json:"options"`
	Error    string    `json:"error,omitempty"`

	// Filled on completion
	Adapter       string        `json:"adapter,omitempty"`
	CueCount      int           `json:"subtitle_count,omitempty"`
	AudioDuration time.Duration `json:"audio_duration,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Owned files; WorkDir holds everything the job writes.
	WorkDir    string `json:"-"`
	SourcePath string `json:"-"`
	ResultPath string `json:"-"`
}

// validate checks that result and error match the status.
func (j *Job) validate() error {
	switch j.Status {
	case StatusCompleted:
		if j.ResultPath == "" || j.Error != "" {
			return fmt.Errorf("%w: completed job needs a result and no error", ErrInvalidTransition)
		}
	case StatusFailed:
		if j.Error == "" || j.ResultPath != "" {
			return fmt.Errorf("%w: failed job needs an error and no result", ErrInvalidTransition)
		}
	default:
		if j.ResultPath != "" || j.Error != "" {
			return fmt.Errorf("%w: %s job cannot carry a result or error", ErrInvalidTransition, j.Status)
		}
	}
	return nil
}

// JobFailedError carries the recorded failure of a job out of Result.
type JobFailedError struct {
	ID      string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.ID, e.Message)
}

// ValidationError rejects a submission before any job is created.
type ValidationError struct {
	Reason error
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

func (e *ValidationError) Unwrap() error { return e.Reason }

var (
	ErrMissingFile       = errors.New("missing file")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrFileTooLarge      = errors.New("file too large")
)

func validationError(reason error, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
