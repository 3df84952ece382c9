package core

import (
	"context"
	"io"
	"time"
)

// JobState is the lifecycle state of a processing job.
type JobState string

const (
	StateIdle       JobState = "idle"
	StateSubmitting JobState = "submitting"
	StatePolling    JobState = "polling"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// Terminal reports whether no further transition is possible for the job instance.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Active reports whether a job is in flight.
func (s JobState) Active() bool {
	return s == StateSubmitting || s == StatePolling
}

// JobResult is the backend's summary of a completed job.
type JobResult struct {
	ProcessingTimeMs int64 `json:"processingTimeMs"`
	DepartmentCount  int64 `json:"departmentCount"`
}

// Summary formats the result the way it is shown next to the table,
// e.g. "4 departments processed in 1.50 s".
func (r JobResult) Summary() string {
	return formatDepartments(r.DepartmentCount) + " processed in " + FormatProcessingTime(r.ProcessingTimeMs)
}

// JobDescriptor is what the backend returns when a file is accepted.
type JobDescriptor struct {
	JobID        string `json:"jobId"`
	DownloadLink string `json:"downloadLink"`
	StatusURL    string `json:"statusUrl"`
}

// Job identifies one processing request. StatusURL and DownloadURL never
// change after NewJob; State and Result are owned by the Poller.
type Job struct {
	ID          string     `json:"id"`
	StatusURL   string     `json:"statusUrl"`
	DownloadURL string     `json:"downloadUrl"`
	State       JobState   `json:"state"`
	Result      *JobResult `json:"result,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
}

// NewJob creates a job from an upload response.
func NewJob(desc JobDescriptor) Job {
	return Job{
		ID:          desc.JobID,
		StatusURL:   desc.StatusURL,
		DownloadURL: desc.DownloadLink,
		State:       StateSubmitting,
		SubmittedAt: time.Now(),
	}
}

// FileName returns the last path segment of the download URL, or "file.csv".
func (j Job) FileName() string {
	return fileNameFromLink(j.DownloadURL)
}

// RemoteState is the job state as reported by the status endpoint.
type RemoteState string

const (
	RemotePending   RemoteState = "pending"
	RemoteCompleted RemoteState = "completed"
	RemoteFailed    RemoteState = "failed"
)

// StatusReport is one decoded status response.
type StatusReport struct {
	State  RemoteState `json:"state"`
	Result *JobResult  `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// FileUpload is a file handed to the upload collaborator.
type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader submits a file and returns the job descriptor.
type Uploader interface {
	Upload(ctx context.Context, file FileUpload) (JobDescriptor, error)
}

// StatusFetcher queries the status of a job.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, statusURL string) (StatusReport, error)
}

// Downloader fetches the processed CSV. The caller closes the body.
type Downloader interface {
	Download(ctx context.Context, downloadURL string) (io.ReadCloser, error)
}

// StructuredTable is a parsed, column-projected CSV. Every row has
// len(Headers) cells. Treat it as immutable once produced.
type StructuredTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// RowCount returns the number of data rows.
func (t *StructuredTable) RowCount() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}
