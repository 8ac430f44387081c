package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/cache"
	"github.com/prospectlens/api/internal/config"
	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/research"
	"github.com/prospectlens/api/internal/store"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

const (
	discoveryReply = `{"prospects":[
		{"name":"Hartford PD","state":"CT","category":"police"},
		{"name":"New Haven PD","state":"CT","category":"police"},
		{"name":"Stamford PD","state":"CT","category":"police"}]}`
	dossierReply = `{"summary":"Evaluating replacements","incumbentVendor":{"name":"Axon","confidence":0.8},
		"contractEstimate":{"annualValueUsd":120000},"stakeholders":[{"name":"Chief"}],
		"macroSignals":[{"signal":"Budget increase"}],"recommendedAngles":["TCO"],"confidence":0.7}`
	competitorReply = `{"competitors":["Axon","Motorola"]}`
	briefReply      = `{"positioningSummary":"Faster and cheaper","advantages":[{"title":"Speed","buyerRationale":"Budgets","comparisons":[],"talkTrack":[],"objections":[]}]}`
	planReply       = `{"summary":"Pilot first","whoToTarget":[],"whoToAvoid":[],"nextSteps":["Call"],"talkTrack":[],"outreachDraft":"Hi","risks":[],"confidence":0.6}`
)

// scriptedCompleter replies per template. When gate is set, dossier calls
// block until it is closed.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[research.Kind]string
	errs    map[research.Kind]error
	calls   map[research.Kind]int
	gate    chan struct{}
}

func newScriptedCompleter() *scriptedCompleter {
	return &scriptedCompleter{
		replies: map[research.Kind]string{
			research.KindProspectDiscovery: discoveryReply,
			research.KindDossier:           dossierReply,
			research.KindCompetitorLookup:  competitorReply,
			research.KindAdvantageBrief:    briefReply,
			research.KindAccountPlan:       planReply,
		},
		errs:  map[research.Kind]error{},
		calls: map[research.Kind]int{},
	}
}

func (c *scriptedCompleter) Complete(ctx context.Context, kind research.Kind, _, _ string) (string, error) {
	c.mu.Lock()
	c.calls[kind]++
	reply, err, gate := c.replies[kind], c.errs[kind], c.gate
	c.mu.Unlock()

	if kind == research.KindDossier && gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (c *scriptedCompleter) Calls(kind research.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[kind]
}

func (c *scriptedCompleter) Fail(kind research.Kind, err error) {
	c.mu.Lock()
	c.errs[kind] = err
	c.mu.Unlock()
}

// recordingDispatcher accepts tasks and never runs them, like a worker that
// died after the claim.
type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []model.DossierTask
}

func (d *recordingDispatcher) Dispatch(_ context.Context, task model.DossierTask) error {
	d.mu.Lock()
	d.tasks = append(d.tasks, task)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) Tasks() []model.DossierTask {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.DossierTask(nil), d.tasks...)
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	clock      *fixedClock
	store      *store.Store
	completer  *scriptedCompleter
	sessions   *SessionService
	queue      *JobQueue
	dossiers   *DossierStep
	advantages *AdvantageService
	discovery  *DiscoveryService
	plans      *AccountPlanService
	dispatcher *InlineDispatcher
	executor   *Executor
	execCfg    config.ExecutorConfig
	logger     *zap.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zap.NewNop()
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	st := store.New(rdb, store.WithClock(clock.Now))
	rc := cache.New(rdb, time.Minute, logger, cache.WithClock(clock.Now))
	completer := newScriptedCompleter()
	provider := research.NewProviderWithCompleter(completer, logger)
	cacheCfg := config.CacheConfig{ProspectsTTL: 24 * time.Hour, CompetitorsTTL: 7 * 24 * time.Hour}

	h := &harness{
		t:         t,
		ctx:       context.Background(),
		clock:     clock,
		store:     st,
		completer: completer,
		execCfg:   config.ExecutorConfig{StaleAfter: 5 * time.Minute, MaxAttempts: 3, TaskTimeout: 5 * time.Second},
		logger:    logger,
	}
	h.sessions = NewSessionService(st, config.SessionsConfig{DedupWindow: 24 * time.Hour, AllowAnonymous: true}, logger)
	h.queue = NewJobQueue(st)
	h.dossiers = NewDossierStep(h.sessions, st, h.queue, provider, logger)
	h.advantages = NewAdvantageService(h.sessions, st, h.queue, rc, provider, cacheCfg, logger)
	h.discovery = NewDiscoveryService(h.sessions, st, h.queue, rc, provider, cacheCfg, logger)
	h.plans = NewAccountPlanService(h.sessions, st, provider, logger)
	h.dispatcher = NewInlineDispatcher(h.dossiers, h.execCfg.TaskTimeout, logger)
	h.executor = h.newExecutor(h.dispatcher)
	t.Cleanup(h.dispatcher.Wait)
	return h
}

func (h *harness) newExecutor(d Dispatcher) *Executor {
	return NewExecutor(h.sessions, h.queue, h.store, h.dossiers, h.advantages, d, h.execCfg, h.logger)
}

func (h *harness) createSession(owner *string) string {
	h.t.Helper()
	resp, err := h.sessions.CreateSession(h.ctx, owner, model.Criteria{
		ProductDescription: "Body-worn cameras",
		States:             []string{"CT"},
		TargetCategories:   []string{"police"},
		Competitors:        []string{"Axon"},
	})
	require.NoError(h.t, err)
	return resp.SessionID
}

func (h *harness) discover(sessionID string, owner *string) *model.DiscoverProspectsResponse {
	h.t.Helper()
	resp, err := h.discovery.DiscoverProspects(h.ctx, sessionID, owner, &model.DiscoverProspectsRequest{Limit: 10})
	require.NoError(h.t, err)
	return resp
}

// poll advances once and waits for any detached work it started.
func (h *harness) poll(sessionID string, caller *string) *model.Snapshot {
	h.t.Helper()
	snap, err := h.executor.Advance(h.ctx, sessionID, caller)
	require.NoError(h.t, err)
	h.dispatcher.Wait()
	return snap
}

func strPtr(s string) *string { return &s }
