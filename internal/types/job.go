package types

import "time"

type JobStatus string

const (
	JobStatusInitialized JobStatus = "initialized"
	JobStatusAnalyzing   JobStatus = "analyzing"
	JobStatusGenerating  JobStatus = "generating"
	JobStatusRendering   JobStatus = "rendering"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
)

// Terminal reports whether the status is absorbing. A terminal job is never
// mutated again; only whole-record deletion is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the unit of orchestrated work. It is owned exclusively by the job
// service; every mutation goes through a single store update so readers always
// observe a self-consistent snapshot.
type Job struct {
	ID          string    `json:"job_id"`
	Prompt      string    `json:"prompt"`
	Quality     string    `json:"quality"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"current_step"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Result fields, populated only on completion.
	VideoURL    string `json:"video_url,omitempty"`
	Code        string `json:"code,omitempty"`
	SceneName   string `json:"scene_name,omitempty"`
	Description string `json:"description,omitempty"`
	Method      string `json:"method,omitempty"`
	Model       string `json:"model,omitempty"`
	SampleUsed  string `json:"sample_used,omitempty"`

	// Error, populated only on failure.
	Error string `json:"error,omitempty"`
}
