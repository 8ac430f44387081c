package research

import (
	"fmt"
	"strings"

	"github.com/prospectlens/api/internal/model"
)

// Canned research for development without an LLM key.

var mockCities = map[string][]string{
	"CA": {"Fresno", "Oakland", "Riverside", "Sacramento", "San Jose"},
	"CT": {"Bridgeport", "Hartford", "New Haven", "Stamford", "Waterbury"},
	"NY": {"Albany", "Buffalo", "Rochester", "Syracuse", "Yonkers"},
	"TX": {"Austin", "El Paso", "Fort Worth", "Houston", "Plano"},
}

var mockFallbackCities = []string{"Capitol", "Lakeside", "Riverside", "Springfield", "Union"}

func mockProspects(c model.Criteria, limit, page int) []model.ProspectCandidate {
	if limit <= 0 {
		limit = 10
	}
	categories := c.TargetCategories
	if len(categories) == 0 {
		categories = []string{"city government"}
	}
	states := c.States
	if len(states) == 0 {
		return []model.ProspectCandidate{}
	}

	out := make([]model.ProspectCandidate, 0, limit)
	for i := page * limit; len(out) < limit; i++ {
		state := states[i%len(states)]
		cities, ok := mockCities[state]
		if !ok {
			cities = mockFallbackCities
		}
		round := i / len(states)
		city := cities[round%len(cities)]
		category := categories[(round/len(cities))%len(categories)]
		if round >= len(cities)*len(categories) {
			break
		}
		out = append(out, model.ProspectCandidate{
			Name:      fmt.Sprintf("%s %s", city, titleCase(category)),
			State:     state,
			Category:  category,
			Rationale: fmt.Sprintf("Mid-sized %s in %s with an aging contract for this product class.", category, state),
		})
	}
	return out
}

func mockCompetitors(c model.Criteria) []string {
	if len(c.Competitors) > 0 {
		return c.Competitors
	}
	return []string{"Incumbent Systems Inc", "Legacy Solutions Group"}
}

func mockBrief(c model.Criteria, competitors []string) *model.Brief {
	comparisons := make([]model.CompetitorComparison, 0, len(competitors))
	for _, name := range competitors {
		comparisons = append(comparisons, model.CompetitorComparison{
			Competitor: name,
			Comparison: fmt.Sprintf("Faster deployment and lower total cost than %s.", name),
			Confidence: 0.5,
		})
	}
	return &model.Brief{
		PositioningSummary: "Modern, lower-cost alternative that deploys in weeks rather than months.",
		Advantages: []model.Advantage{
			{
				Title:          "Time to value",
				BuyerRationale: "Procurement cycles are long; a fast rollout shows results inside one budget year.",
				Comparisons:    comparisons,
				TalkTrack:      []string{"Most customers are live within 30 days."},
				Objections: []model.ObjectionResponse{
					{Objection: "We are locked into our current contract.", Response: "We can phase in at renewal with no overlap cost."},
				},
			},
		},
	}
}

func mockDossier(c model.Criteria, p *model.Prospect) *model.Dossier {
	incumbent := "Incumbent Systems Inc"
	if len(c.Competitors) > 0 {
		incumbent = c.Competitors[0]
	}
	value := 180000.0
	return &model.Dossier{
		Summary: fmt.Sprintf("%s is reviewing its current vendor ahead of the next budget cycle.", p.Name),
		Incumbent: model.IncumbentVendor{
			Name:       incumbent,
			Confidence: 0.6,
			Rationale:  "Named in recent council meeting minutes.",
		},
		ContractEstimate: &model.ContractEstimate{
			AnnualValueUSD: &value,
			RenewalWindow:  "next fiscal year",
			Basis:          "Comparable agencies of similar size.",
		},
		Stakeholders: []model.Stakeholder{
			{Name: "Procurement Director", Title: "Director of Procurement", Role: "decision_maker"},
			{Name: "IT Manager", Title: "IT Manager", Role: "evaluator"},
		},
		MacroSignals: []model.MacroSignal{
			{Signal: "Capital budget increase approved", Impact: "positive"},
		},
		RecommendedAngles: []string{"Lead with total cost of ownership", "Offer a pilot before renewal"},
		Confidence:        0.6,
	}
}

func mockAccountPlan(in PlanInput) *model.AccountPlan {
	name := in.Prospect.Name
	return &model.AccountPlan{
		Summary: fmt.Sprintf("Position a pilot at %s ahead of the incumbent's renewal.", name),
		WhoToTarget: []model.PlanContact{
			{Name: "Procurement Director", Title: "Director of Procurement", Reason: "Owns the renewal decision."},
		},
		WhoToAvoid: []model.PlanContact{
			{Name: "Incumbent champion", Reason: "Sponsored the current vendor."},
		},
		NextSteps:     []string{"Request the current contract via public records", "Book a discovery call"},
		TalkTrack:     []string{"Agencies like yours cut rollout time by half."},
		OutreachDraft: fmt.Sprintf("Hi, I work with agencies similar to %s and wanted to share how they shortened rollout times.", name),
		Risks:         []string{"Renewal may be auto-extended"},
		Confidence:    0.5,
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
