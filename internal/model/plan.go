package model

type PlanContact struct {
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// AccountPlan is generated on demand for one prospect and is not persisted.
type AccountPlan struct {
	Summary       string        `json:"summary"`
	WhoToTarget   []PlanContact `json:"whoToTarget"`
	WhoToAvoid    []PlanContact `json:"whoToAvoid"`
	NextSteps     []string      `json:"nextSteps"`
	TalkTrack     []string      `json:"talkTrack"`
	OutreachDraft string        `json:"outreachDraft"`
	Risks         []string      `json:"risks"`
	Confidence    float64       `json:"confidence"`
	LowConfidence bool          `json:"lowConfidence,omitempty"`
}
