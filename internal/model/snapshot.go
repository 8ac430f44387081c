package model

import "time"

// ProspectSummary is the snapshot view of a prospect. Dossier is omitted
// when the dossier status is failed so stale content is never shown as current.
type ProspectSummary struct {
	Key         string        `json:"prospectKey"`
	Name        string        `json:"name"`
	State       string        `json:"state"`
	Category    string        `json:"category,omitempty"`
	Latitude    *float64      `json:"latitude,omitempty"`
	Longitude   *float64      `json:"longitude,omitempty"`
	Status      DossierStatus `json:"status"`
	Error       *string       `json:"error,omitempty"`
	Score       *int          `json:"score,omitempty"`
	Dossier     *Dossier      `json:"dossier,omitempty"`
	LastUpdated *time.Time    `json:"lastUpdated,omitempty"`
}

// Summarize builds the snapshot view of p.
func (p *Prospect) Summarize() ProspectSummary {
	s := ProspectSummary{
		Key:         p.Key,
		Name:        p.Name,
		State:       p.State,
		Category:    p.Category,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		Status:      p.Status,
		Error:       p.Error,
		LastUpdated: p.LastUpdated,
	}
	if p.Status != DossierStatusFailed && p.Dossier != nil {
		d := *p.Dossier
		s.Dossier = &d
		score := d.Score
		s.Score = &score
	}
	return s
}

// Snapshot is the consistent view returned by every poll.
type Snapshot struct {
	Session              Session           `json:"session"`
	AdvantageBrief       *Brief            `json:"advantageBrief,omitempty"`
	AdvantageBriefStatus BriefStatus       `json:"advantageBriefStatus"`
	Prospects            []ProspectSummary `json:"prospects"`
	Jobs                 []Job             `json:"jobs"`
	Progress             int               `json:"progress"`
}

// AggregateProgress is terminal jobs over total jobs as a percentage, 0 when
// there are no jobs.
func AggregateProgress(jobs []Job) int {
	if len(jobs) == 0 {
		return 0
	}
	done := 0
	for _, j := range jobs {
		if j.Status.Terminal() {
			done++
		}
	}
	return done * 100 / len(jobs)
}

// HasActiveJobs reports whether any job is queued or running.
func (s *Snapshot) HasActiveJobs() bool {
	for _, j := range s.Jobs {
		if !j.Status.Terminal() {
			return true
		}
	}
	return false
}

// Settled reports whether polling can stop: progress reached 100, or at
// least one job exists, every job is terminal and every dossier is terminal.
func (s *Snapshot) Settled() bool {
	if s.Progress >= 100 {
		return true
	}
	if len(s.Jobs) == 0 || s.HasActiveJobs() {
		return false
	}
	for _, p := range s.Prospects {
		if !p.Status.Terminal() {
			return false
		}
	}
	return true
}
