package model

import (
	"math"
	"strings"
	"time"
	"unicode"
)

type DossierStatus string

const (
	DossierStatusQueued      DossierStatus = "queued"
	DossierStatusResearching DossierStatus = "researching"
	DossierStatusReady       DossierStatus = "ready"
	DossierStatusFailed      DossierStatus = "failed"
)

func (s DossierStatus) Terminal() bool {
	return s == DossierStatusReady || s == DossierStatusFailed
}

type Citation struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

type IncumbentVendor struct {
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
	Rationale  string     `json:"rationale,omitempty"`
	Citations  []Citation `json:"citations,omitempty"`
}

type ContractEstimate struct {
	AnnualValueUSD *float64 `json:"annualValueUsd,omitempty"`
	RenewalWindow  string   `json:"renewalWindow,omitempty"`
	Basis          string   `json:"basis,omitempty"`
}

type Stakeholder struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Role  string `json:"role,omitempty"`
	Notes string `json:"notes,omitempty"`
}

type MacroSignal struct {
	Signal    string     `json:"signal"`
	Impact    string     `json:"impact,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// Dossier is the structured per-prospect research artifact.
type Dossier struct {
	Summary           string            `json:"summary"`
	Incumbent         IncumbentVendor   `json:"incumbentVendor"`
	ContractEstimate  *ContractEstimate `json:"contractEstimate,omitempty"`
	Stakeholders      []Stakeholder     `json:"stakeholders"`
	MacroSignals      []MacroSignal     `json:"macroSignals"`
	RecommendedAngles []string          `json:"recommendedAngles"`
	Confidence        float64           `json:"confidence"`
	Score             int               `json:"score"`
	LowConfidence     bool              `json:"lowConfidence,omitempty"`
}

// RollupScore condenses the dossier into a 0-100 score.
func (d *Dossier) RollupScore() int {
	score := clamp01(d.Incumbent.Confidence) * 25
	score += float64(min(len(d.Stakeholders), 5)) * 5
	score += float64(min(len(d.MacroSignals), 5)) * 6
	score += float64(min(len(d.RecommendedAngles), 3)) * 5
	if d.ContractEstimate != nil && (d.ContractEstimate.AnnualValueUSD != nil || d.ContractEstimate.RenewalWindow != "") {
		score += 10
	}
	if d.LowConfidence {
		score /= 2
	}
	return int(math.Round(math.Max(0, math.Min(100, score))))
}

// ProspectCandidate is one organization returned by prospect discovery.
type ProspectCandidate struct {
	Name      string   `json:"name"`
	State     string   `json:"state"`
	Category  string   `json:"category,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Rationale string   `json:"rationale,omitempty"`
}

// Prospect is a candidate organization together with its dossier state.
type Prospect struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"sessionId"`
	Key         string        `json:"prospectKey"`
	Name        string        `json:"name"`
	State       string        `json:"state"`
	Category    string        `json:"category,omitempty"`
	Latitude    *float64      `json:"latitude,omitempty"`
	Longitude   *float64      `json:"longitude,omitempty"`
	Rationale   string        `json:"rationale,omitempty"`
	Dossier     *Dossier      `json:"dossier,omitempty"`
	Status      DossierStatus `json:"status"`
	Error       *string       `json:"error,omitempty"`
	Seq         int64         `json:"seq"`
	CreatedAt   time.Time     `json:"createdAt"`
	LastUpdated *time.Time    `json:"lastUpdated,omitempty"`
}

// ProspectKey derives a stable key from name and state, e.g.
// ("Hartford PD", "CT") -> "hartford-pd-ct". Spelling variants that fold to
// the same key are treated as the same prospect.
func ProspectKey(name, state string) string {
	slug := slugify(name)
	if slug == "" {
		slug = "unknown"
	}
	if st := slugify(state); st != "" {
		return slug + "-" + st
	}
	return slug
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
