package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/auth"
	"github.com/prospectlens/api/internal/cache"
	"github.com/prospectlens/api/internal/client"
	"github.com/prospectlens/api/internal/config"
	"github.com/prospectlens/api/internal/handler"
	"github.com/prospectlens/api/internal/middleware"
	"github.com/prospectlens/api/internal/research"
	"github.com/prospectlens/api/internal/service"
	"github.com/prospectlens/api/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app        *fiber.App
	dispatcher *service.InlineDispatcher
	redis      *miniredis.Miniredis
}

type appOptions struct {
	allowAnonymous bool
}

// setupApp wires the same components as main.go against an in-process redis.
// The LLM client has no key, so research runs on the built-in mock.
func setupApp(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	log := zap.NewNop()
	validate := validator.New()

	st := store.New(redisClient)
	resultCache := cache.New(redisClient, time.Minute, log)
	provider := research.NewProvider(client.NewLLMClient(&config.LLMConfig{}), log)

	cacheCfg := config.CacheConfig{ProspectsTTL: time.Hour, CompetitorsTTL: time.Hour}
	execCfg := config.ExecutorConfig{StaleAfter: 5 * time.Minute, MaxAttempts: 3, TaskTimeout: 10 * time.Second}

	sessions := service.NewSessionService(st, config.SessionsConfig{DedupWindow: time.Hour, AllowAnonymous: opts.allowAnonymous}, log)
	queue := service.NewJobQueue(st)
	dossiers := service.NewDossierStep(sessions, st, queue, provider, log)
	advantages := service.NewAdvantageService(sessions, st, queue, resultCache, provider, cacheCfg, log)
	discovery := service.NewDiscoveryService(sessions, st, queue, resultCache, provider, cacheCfg, log)
	plans := service.NewAccountPlanService(sessions, st, provider, log)
	exports := service.NewExportService(sessions, nil, time.Hour, log) // no R2 → 503

	dispatcher := service.NewInlineDispatcher(dossiers, execCfg.TaskTimeout, log)
	t.Cleanup(dispatcher.Wait)
	executor := service.NewExecutor(sessions, queue, st, dossiers, advantages, dispatcher, execCfg, log)

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis": st.Ping(c.Context()) == nil,
				"llm":   !provider.IsMock(),
				"r2":    false,
			},
		})
	})

	// Use very high rate limits so tests don't get blocked
	limits := config.RateLimitConfig{CreatePerHour: 10000, DiscoverPerHour: 10000, AdvantagesPerHour: 10000, PlanPerHour: 10000, ExportPerHour: 10000}
	handler.RegisterRoutes(app, handler.Routes{
		Auth:     middleware.NewAuthMiddleware(auth.Compact(auth.NewLegacyVerifier(testJWTSecret))).Authenticate(),
		Limits:   middleware.NewRateLimiter(redisClient, limits, log),
		Sessions: handler.NewSessionHandler(sessions, executor, validate, log),
		Research: handler.NewResearchHandler(discovery, advantages, dossiers, plans, validate, log),
		Export:   handler.NewExportHandler(exports, log),
	})

	return &testApp{app: app, dispatcher: dispatcher, redis: mr}
}

// generateToken creates a legacy HMAC JWT token for userID.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.NewLegacyVerifier(testJWTSecret).Issue(userID, userID+"@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request as userID.
func doAuthRequest(t *testing.T, app *fiber.App, userID, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t, userID)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// send performs a request as userID, or anonymously when userID is empty,
// failing the test if the request itself errors.
func (ta *testApp) send(t *testing.T, userID, method, path, body string) *http.Response {
	t.Helper()
	var resp *http.Response
	var err error
	if userID == "" {
		resp, err = doRequest(ta.app, method, path, body, nil)
	} else {
		resp, err = doAuthRequest(t, ta.app, userID, method, path, body)
	}
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// poll advances the session once and waits for the research it started.
func (ta *testApp) poll(t *testing.T, userID, sessionID string) map[string]interface{} {
	t.Helper()
	resp := ta.send(t, userID, http.MethodGet, "/api/sessions/"+sessionID+"/poll", "")
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	ta.dispatcher.Wait()
	return body
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	detail, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := detail["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
