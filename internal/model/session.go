package model

import "time"

type SessionStatus string

const (
	SessionStatusCreated     SessionStatus = "created"
	SessionStatusResearching SessionStatus = "researching"
	SessionStatusReady       SessionStatus = "ready"
	SessionStatusFailed      SessionStatus = "failed"
)

// Session is a discovery session scoped to one set of targeting criteria.
// OwnerID is nil for anonymous sessions.
type Session struct {
	ID           string        `json:"id"`
	OwnerID      *string       `json:"ownerId,omitempty"`
	Criteria     Criteria      `json:"criteria"`
	CriteriaHash string        `json:"criteriaHash"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// ReadableBy applies the access rule: owner-less sessions are readable by
// anyone holding the id, owned sessions only by their owner.
func (s *Session) ReadableBy(caller *string) bool {
	if s.OwnerID == nil {
		return true
	}
	return caller != nil && *caller == *s.OwnerID
}

// AggregateSessionStatus derives the session status from its jobs. With no
// jobs the current status is kept.
func AggregateSessionStatus(current SessionStatus, jobs []Job) SessionStatus {
	if len(jobs) == 0 {
		return current
	}
	completed := 0
	for _, j := range jobs {
		if !j.Status.Terminal() {
			return SessionStatusResearching
		}
		if j.Status == JobStatusComplete {
			completed++
		}
	}
	if completed == 0 {
		return SessionStatusFailed
	}
	return SessionStatusReady
}
