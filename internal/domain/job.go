package domain

import (
	"fmt"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusIdle                JobStatus = "IDLE"
	JobStatusAnalyzing           JobStatus = "ANALYZING"
	JobStatusGeneratingThumbnail JobStatus = "GENERATING_THUMBNAIL"
	JobStatusReadyToUpload       JobStatus = "READY_TO_UPLOAD"
	JobStatusUploading           JobStatus = "UPLOADING"
	JobStatusCompleted           JobStatus = "COMPLETED"
	JobStatusFailed              JobStatus = "FAILED"
)

// Stage names the pipeline step a failed job stopped at.
type Stage string

const (
	StageNone     Stage = ""
	StageAnalysis Stage = "analysis"
	StageUpload   Stage = "upload"
)

var transitions = map[JobStatus][]JobStatus{
	JobStatusIdle:                {JobStatusAnalyzing},
	JobStatusAnalyzing:           {JobStatusGeneratingThumbnail, JobStatusFailed},
	JobStatusGeneratingThumbnail: {JobStatusReadyToUpload, JobStatusFailed},
	JobStatusReadyToUpload:       {JobStatusUploading},
	JobStatusUploading:           {JobStatusCompleted, JobStatusFailed},
}

// Terminal reports whether no pipeline step leaves the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether the forward state machine allows s -> to.
// Retries out of Failed are explicit and validated by RetryTarget instead.
func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// RetryTarget returns the status a failed job re-enters when retried.
func RetryTarget(stage Stage) (JobStatus, error) {
	switch stage {
	case StageAnalysis:
		return JobStatusAnalyzing, nil
	case StageUpload:
		return JobStatusUploading, nil
	default:
		return "", fmt.Errorf("no retry transition for stage %q", stage)
	}
}

// SourceFile references a dropped or selected video held by the source store.
type SourceFile struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mime_type"`
}

// Job is one request to turn a concept or file into a published video.
// Values are replaced as a whole on every update; Clone before handing one out.
type Job struct {
	ID          string      `json:"id"`
	Concept     string      `json:"concept"`
	Filename    string      `json:"filename"`
	FileSize    string      `json:"file_size"`
	SourceFile  *SourceFile `json:"source_file,omitempty"`
	Status      JobStatus   `json:"status"`
	Result      *Metadata   `json:"result,omitempty"`
	RemoteID    string      `json:"remote_id,omitempty"`
	Progress    int         `json:"progress"`
	FailedStage Stage       `json:"failed_stage,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Clone returns a deep copy so callers never share slices or pointers with the collection.
func (j Job) Clone() Job {
	out := j
	if j.SourceFile != nil {
		src := *j.SourceFile
		out.SourceFile = &src
	}
	if j.Result != nil {
		res := j.Result.Clone()
		out.Result = &res
	}
	return out
}

// CanMoveTo reports whether the job may enter status to, either along the
// forward state machine or by retrying the stage it failed at.
func (j Job) CanMoveTo(to JobStatus) bool {
	if j.Status.CanTransition(to) {
		return true
	}
	if j.Status != JobStatusFailed {
		return false
	}
	target, err := RetryTarget(j.FailedStage)
	return err == nil && target == to
}

// CanUpload reports whether the job carries the binary payload an upload needs.
func (j Job) CanUpload() bool {
	return j.SourceFile != nil && j.SourceFile.Key != ""
}

// HumanSize renders a byte count the way the job list displays it.
func HumanSize(size int64) string {
	if size <= 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
}
