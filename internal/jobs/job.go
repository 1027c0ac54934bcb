// Package jobs holds the upload job record and the in-memory ledger that owns it.
package jobs

import "time"

// Status is the lifecycle state of an upload job.
type Status string

const (
	StatusQueued     Status = "Queued"
	StatusUploading  Status = "Uploading"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitions is the closed set of legal status moves. Statuses only move
// forward; nothing leaves a terminal state.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusUploading, StatusFailed},
	StatusUploading:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is one user-submitted video on its way to publication.
type Job struct {
	ID             string `json:"id"`
	DiscordUserID  string `json:"discord_user_id"`
	Username       string `json:"username"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	PublishMessage string `json:"publish_message"`
	TargetChannel  string `json:"target_channel"`
	PingChannel    bool   `json:"ping_channel"`

	// FilePath is the saved temp file; owned by this job alone and removed
	// exactly once when the job reaches a terminal status.
	FilePath string `json:"-"`

	Status       Status `json:"status"`
	VideoID      string `json:"video_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt           time.Time `json:"created_at"`
	ProcessingStartedAt time.Time `json:"processing_started_at,omitempty"`
	LastCheckedAt       time.Time `json:"last_checked_at,omitempty"`
	CompletedAt         time.Time `json:"completed_at,omitempty"`

	// ProcessingChecks counts remote status checks actually performed while
	// the job is Processing (not orchestrator ticks).
	ProcessingChecks int `json:"processing_checks"`
}

// WatchURL is the public link for the published video.
func (j *Job) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + j.VideoID
}
