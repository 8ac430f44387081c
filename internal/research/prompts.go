package research

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prospectlens/api/internal/model"
)

const systemPrompt = `You are a B2B sales research analyst specializing in public-sector and institutional buyers.
You research organizations, their incumbent vendors, budgets and decision makers using public information.
Always output your response as valid JSON in the exact format requested.
Do not include any text outside the JSON structure.
When you are unsure, lower the confidence value instead of inventing facts.`

func describeCriteria(c model.Criteria) string {
	var b strings.Builder
	if c.ProductDescription != "" {
		fmt.Fprintf(&b, "Product: %s\n", c.ProductDescription)
	}
	fmt.Fprintf(&b, "States: %s\n", strings.Join(c.States, ", "))
	if len(c.TargetCategories) > 0 {
		fmt.Fprintf(&b, "Target categories: %s\n", strings.Join(c.TargetCategories, ", "))
	}
	if len(c.Competitors) > 0 {
		fmt.Fprintf(&b, "Known competitors: %s\n", strings.Join(c.Competitors, ", "))
	}
	if c.CompanyDomain != "" {
		fmt.Fprintf(&b, "Seller website: %s\n", c.CompanyDomain)
	}
	return b.String()
}

func buildDiscoveryPrompt(c model.Criteria, limit, page int) string {
	return fmt.Sprintf(`Find organizations that are likely buyers of the product below.
%s
Return up to %d prospects. This is result page %d; do not repeat organizations from earlier pages.
Only include organizations located in the listed states. Use the two-letter state code.

Output as JSON: {"prospects": [{"name": "...", "state": "CT", "category": "...", "latitude": 41.76, "longitude": -72.67, "rationale": "..."}]}`,
		describeCriteria(c), limit, page+1)
}

func buildCompetitorPrompt(c model.Criteria) string {
	return fmt.Sprintf(`List the main competitors of the seller described below, as a buyer in these markets would see them.
%s
Return at most 8 company names, most relevant first.

Output as JSON: {"competitors": ["...", "..."]}`, describeCriteria(c))
}

func buildAdvantagePrompt(c model.Criteria, competitors []string) string {
	return fmt.Sprintf(`Write a competitive positioning brief for the seller described below.
%s
Compare against: %s

For each advantage give a title, why a buyer cares, a comparison per competitor with a 0-1 confidence and citations where available, talk-track lines, and objection handling.

Output as JSON: {"positioningSummary": "...", "advantages": [{"title": "...", "buyerRationale": "...", "comparisons": [{"competitor": "...", "comparison": "...", "confidence": 0.7, "citations": [{"title": "...", "url": "..."}]}], "talkTrack": ["..."], "objections": [{"objection": "...", "response": "..."}]}]}`,
		describeCriteria(c), strings.Join(competitors, ", "))
}

func buildDossierPrompt(c model.Criteria, p *model.Prospect) string {
	var loc string
	if p.Category != "" {
		loc = fmt.Sprintf(" (%s)", p.Category)
	}
	return fmt.Sprintf(`Research the prospect %s%s in %s as a buyer of the product below.
%s
Identify the incumbent vendor with a 0-1 confidence, estimate the contract value and renewal window, name key stakeholders, list macro signals that affect buying, and recommend sales angles.

Output as JSON: {"summary": "...", "incumbentVendor": {"name": "...", "confidence": 0.6, "rationale": "...", "citations": [{"title": "...", "url": "..."}]}, "contractEstimate": {"annualValueUsd": 250000, "renewalWindow": "FY2027", "basis": "..."}, "stakeholders": [{"name": "...", "title": "...", "role": "decision_maker", "notes": "..."}], "macroSignals": [{"signal": "...", "impact": "...", "citations": []}], "recommendedAngles": ["..."], "confidence": 0.6}`,
		p.Name, loc, p.State, describeCriteria(c))
}

func buildAccountPlanPrompt(in PlanInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write an account plan for selling to %s (%s).\n", in.Prospect.Name, in.Prospect.State)
	b.WriteString(describeCriteria(in.Criteria))
	if in.Brief != nil {
		if data, err := json.Marshal(in.Brief); err == nil {
			fmt.Fprintf(&b, "\nCompetitive brief:\n%s\n", data)
		}
	}
	if in.Dossier != nil {
		if data, err := json.Marshal(in.Dossier); err == nil {
			fmt.Fprintf(&b, "\nProspect dossier:\n%s\n", data)
		}
	}
	if notes := strings.TrimSpace(in.RepNotes); notes != "" {
		fmt.Fprintf(&b, "\nRep notes:\n%s\n", notes)
	}
	b.WriteString(`
Output as JSON: {"summary": "...", "whoToTarget": [{"name": "...", "title": "...", "reason": "..."}], "whoToAvoid": [{"name": "...", "title": "...", "reason": "..."}], "nextSteps": ["..."], "talkTrack": ["..."], "outreachDraft": "...", "risks": ["..."], "confidence": 0.6}`)
	return b.String()
}
