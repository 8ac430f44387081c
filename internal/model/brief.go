package model

import "time"

type BriefStatus string

const (
	BriefStatusPending     BriefStatus = "pending"
	BriefStatusResearching BriefStatus = "researching"
	BriefStatusReady       BriefStatus = "ready"
	BriefStatusFailed      BriefStatus = "failed"
)

type CompetitorComparison struct {
	Competitor string     `json:"competitor"`
	Comparison string     `json:"comparison"`
	Confidence float64    `json:"confidence"`
	Citations  []Citation `json:"citations,omitempty"`
}

type ObjectionResponse struct {
	Objection string `json:"objection"`
	Response  string `json:"response"`
}

type Advantage struct {
	Title          string                 `json:"title"`
	BuyerRationale string                 `json:"buyerRationale"`
	Comparisons    []CompetitorComparison `json:"comparisons"`
	TalkTrack      []string               `json:"talkTrack"`
	Objections     []ObjectionResponse    `json:"objections"`
}

// Brief is the competitive-positioning artifact of a session.
type Brief struct {
	PositioningSummary string      `json:"positioningSummary"`
	Advantages         []Advantage `json:"advantages"`
	LowConfidence      bool        `json:"lowConfidence,omitempty"`
}

// AdvantageBrief is the stored, one-per-session brief record.
type AdvantageBrief struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"sessionId"`
	Brief       *Brief      `json:"brief,omitempty"`
	Competitors []string    `json:"competitors,omitempty"`
	Status      BriefStatus `json:"status"`
	Error       *string     `json:"error,omitempty"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}
