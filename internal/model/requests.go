package model

import "time"

// CreateSessionRequest represents the request body for session creation
type CreateSessionRequest struct {
	Criteria Criteria `json:"criteria" validate:"required"`
}

type CreateSessionResponse struct {
	SessionID  string        `json:"sessionId"`
	Status     SessionStatus `json:"status"`
	IsExisting bool          `json:"isExisting"`
}

// DiscoverProspectsRequest represents the request body for prospect discovery.
// Criteria defaults to the session's criteria when omitted.
type DiscoverProspectsRequest struct {
	Criteria *Criteria `json:"criteria,omitempty"`
	Limit    int       `json:"limit" validate:"omitempty,min=1,max=50"`
	Page     int       `json:"page" validate:"omitempty,min=0,max=20"`
}

type DiscoverProspectsResponse struct {
	Prospects []ProspectSummary `json:"prospects"`
	Jobs      []Job             `json:"jobs"`
	Cached    bool              `json:"cached"`
}

type ResearchAdvantagesRequest struct {
	Criteria *Criteria `json:"criteria,omitempty"`
	Force    bool      `json:"force"`
	Deferred bool      `json:"deferred"`
}

type ResearchAdvantagesResponse struct {
	Brief  *Brief      `json:"brief,omitempty"`
	Status BriefStatus `json:"status"`
	Job    *Job        `json:"job,omitempty"`
}

type RefreshProspectResponse struct {
	Prospect ProspectSummary `json:"prospect"`
	Job      *Job            `json:"job,omitempty"`
}

type AccountPlanRequest struct {
	RepNotes string `json:"repNotes" validate:"max=4000"`
}

type AccountPlanResponse struct {
	Plan AccountPlan `json:"plan"`
}

type ExportResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
