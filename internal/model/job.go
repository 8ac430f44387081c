package model

import "time"

type JobType string

const (
	// JobTypeDossier researches one prospect; dispatched detached.
	JobTypeDossier JobType = "dossier"
	// JobTypeAdvantageBrief researches the session brief; run inline by the poll.
	JobTypeAdvantageBrief JobType = "advantage_brief"
)

type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// CanTransition enforces queued -> running -> {complete|failed}.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusComplete || to == JobStatusFailed
	}
	return false
}

// Job is a queued unit of research work belonging to a session.
type Job struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	Type       JobType    `json:"jobType"`
	TargetKey  string     `json:"targetKey,omitempty"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	Error      *string    `json:"error,omitempty"`
	Force      bool       `json:"force,omitempty"`
	Attempts   int        `json:"attempts"`
	Seq        int64      `json:"seq"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// JobUpdate carries optional fields written alongside a transition. A
// non-zero Attempt makes the transition conditional on the job still being
// on that attempt.
type JobUpdate struct {
	Progress *int
	Error    string
	Attempt  int
}

// DossierTask is the detached unit of work handed to a dispatcher. Attempt
// matches Job.Attempts at dispatch time; a task whose attempt was reclaimed
// is stale and does nothing.
type DossierTask struct {
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId"`
	Attempt   int    `json:"attempt"`
}
