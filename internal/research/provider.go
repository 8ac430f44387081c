package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/client"
	"github.com/prospectlens/api/internal/model"
)

// Kind names one of the fixed prompt templates.
type Kind string

const (
	KindProspectDiscovery Kind = "prospect_discovery"
	KindCompetitorLookup  Kind = "competitor_lookup"
	KindAdvantageBrief    Kind = "advantage_brief"
	KindDossier           Kind = "dossier"
	KindAccountPlan       Kind = "account_plan"
)

var errEmptyShape = errors.New("reply decoded to an empty artifact")

// Completer produces free text for a prompt.
type Completer interface {
	Complete(ctx context.Context, kind Kind, system, user string) (string, error)
}

// LLMCompleter adapts the chat completions client to Completer.
type LLMCompleter struct {
	Client *client.LLMClient
}

func (c LLMCompleter) Complete(ctx context.Context, _ Kind, system, user string) (string, error) {
	return c.Client.ChatCompletion(ctx, system, user)
}

// Provider turns prompt templates into typed research artifacts. Malformed
// replies fall back to a minimal default flagged low-confidence; backend
// failures come back as *model.ProviderError.
type Provider struct {
	completer Completer
	logger    *zap.Logger
}

// NewProvider uses the LLM client when it has credentials and the built-in
// mock otherwise.
func NewProvider(llm *client.LLMClient, logger *zap.Logger) *Provider {
	if llm == nil || !llm.IsConfigured() {
		logger.Warn("LLM API key not configured, research provider running in mock mode")
		return &Provider{logger: logger}
	}
	return NewProviderWithCompleter(LLMCompleter{Client: llm}, logger)
}

func NewProviderWithCompleter(c Completer, logger *zap.Logger) *Provider {
	return &Provider{completer: c, logger: logger}
}

// IsMock reports whether replies are canned.
func (p *Provider) IsMock() bool {
	return p.completer == nil
}

// generate runs one template. ok reports whether the reply decoded into a
// usable artifact; when false, out is left for the caller to replace with
// the template default.
func generate[T any](ctx context.Context, p *Provider, kind Kind, user string, out *T, usable func(*T) bool) (bool, error) {
	reply, err := p.completer.Complete(ctx, kind, systemPrompt, user)
	if err != nil {
		return false, Classify(err)
	}
	err = decodeReply(reply, out)
	if err == nil && !usable(out) {
		err = errEmptyShape
	}
	if err != nil {
		p.logger.Warn("Research reply unusable, using default",
			zap.String("template", string(kind)),
			zap.Error(fmt.Errorf("%w: %v", model.ErrMalformedOutput, err)),
			zap.Int("replyLength", len(reply)),
		)
		return false, nil
	}
	return true, nil
}

type candidateList struct {
	Prospects []model.ProspectCandidate `json:"prospects"`
}

func (l *candidateList) UnmarshalJSON(b []byte) error {
	if isArray(b) {
		return json.Unmarshal(b, &l.Prospects)
	}
	type plain candidateList
	return json.Unmarshal(b, (*plain)(l))
}

// DiscoverProspects returns up to limit candidate organizations for one page
// of results. lowConfidence is set when the reply could not be used.
func (p *Provider) DiscoverProspects(ctx context.Context, c model.Criteria, limit, page int) (candidates []model.ProspectCandidate, lowConfidence bool, err error) {
	if p.IsMock() {
		return mockProspects(c, limit, page), false, nil
	}
	var out candidateList
	ok, err := generate(ctx, p, KindProspectDiscovery, buildDiscoveryPrompt(c, limit, page), &out, func(l *candidateList) bool {
		return len(l.Prospects) > 0
	})
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return []model.ProspectCandidate{}, true, nil
	}

	candidates = make([]model.ProspectCandidate, 0, len(out.Prospects))
	for _, cand := range out.Prospects {
		cand.Name = strings.TrimSpace(cand.Name)
		cand.State = strings.ToUpper(strings.TrimSpace(cand.State))
		if cand.Name == "" {
			continue
		}
		candidates = append(candidates, cand)
		if limit > 0 && len(candidates) == limit {
			break
		}
	}
	return candidates, false, nil
}

type competitorList struct {
	Competitors []string `json:"competitors"`
}

func (l *competitorList) UnmarshalJSON(b []byte) error {
	if isArray(b) {
		return json.Unmarshal(b, &l.Competitors)
	}
	type plain competitorList
	return json.Unmarshal(b, (*plain)(l))
}

// LookupCompetitors names the seller's likely competitors.
func (p *Provider) LookupCompetitors(ctx context.Context, c model.Criteria) ([]string, bool, error) {
	if p.IsMock() {
		return mockCompetitors(c), false, nil
	}
	var out competitorList
	ok, err := generate(ctx, p, KindCompetitorLookup, buildCompetitorPrompt(c), &out, func(l *competitorList) bool {
		return len(l.Competitors) > 0
	})
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return []string{}, true, nil
	}
	return model.Criteria{Competitors: out.Competitors}.Normalize().Competitors, false, nil
}

// ResearchAdvantages writes the competitive positioning brief.
func (p *Provider) ResearchAdvantages(ctx context.Context, c model.Criteria, competitors []string) (*model.Brief, error) {
	if p.IsMock() {
		return mockBrief(c, competitors), nil
	}
	var out model.Brief
	ok, err := generate(ctx, p, KindAdvantageBrief, buildAdvantagePrompt(c, competitors), &out, func(b *model.Brief) bool {
		return b.PositioningSummary != "" || len(b.Advantages) > 0
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return &model.Brief{Advantages: []model.Advantage{}, LowConfidence: true}, nil
	}
	for i := range out.Advantages {
		for j := range out.Advantages[i].Comparisons {
			cmp := &out.Advantages[i].Comparisons[j]
			cmp.Confidence = clamp01(cmp.Confidence)
		}
	}
	out.LowConfidence = false
	return &out, nil
}

// ResearchDossier researches one prospect. The returned dossier carries its
// rolled-up score.
func (p *Provider) ResearchDossier(ctx context.Context, c model.Criteria, prospect *model.Prospect) (*model.Dossier, error) {
	var d *model.Dossier
	if p.IsMock() {
		d = mockDossier(c, prospect)
	} else {
		var out model.Dossier
		ok, err := generate(ctx, p, KindDossier, buildDossierPrompt(c, prospect), &out, func(d *model.Dossier) bool {
			return d.Summary != "" || d.Incumbent.Name != "" || len(d.Stakeholders) > 0
		})
		if err != nil {
			return nil, err
		}
		if ok {
			out.LowConfidence = false
			d = &out
		} else {
			d = &model.Dossier{
				Incumbent:         model.IncumbentVendor{Name: "Unknown"},
				Stakeholders:      []model.Stakeholder{},
				MacroSignals:      []model.MacroSignal{},
				RecommendedAngles: []string{},
				LowConfidence:     true,
			}
		}
	}
	d.Confidence = clamp01(d.Confidence)
	d.Incumbent.Confidence = clamp01(d.Incumbent.Confidence)
	d.Score = d.RollupScore()
	return d, nil
}

// PlanInput is everything an account plan is composed from.
type PlanInput struct {
	Criteria model.Criteria
	Prospect *model.Prospect
	Brief    *model.Brief
	Dossier  *model.Dossier
	RepNotes string
}

// GenerateAccountPlan writes an on-demand account plan.
func (p *Provider) GenerateAccountPlan(ctx context.Context, in PlanInput) (*model.AccountPlan, error) {
	if p.IsMock() {
		return mockAccountPlan(in), nil
	}
	var out model.AccountPlan
	ok, err := generate(ctx, p, KindAccountPlan, buildAccountPlanPrompt(in), &out, func(a *model.AccountPlan) bool {
		return a.Summary != "" || len(a.NextSteps) > 0
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return &model.AccountPlan{
			WhoToTarget:   []model.PlanContact{},
			WhoToAvoid:    []model.PlanContact{},
			NextSteps:     []string{},
			TalkTrack:     []string{},
			Risks:         []string{},
			LowConfidence: true,
		}, nil
	}
	out.Confidence = clamp01(out.Confidence)
	out.LowConfidence = false
	return &out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
