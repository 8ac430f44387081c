package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/pkg/response"
)

// HTTPFetcher talks to the session API. It implements Fetcher and carries
// the few calls the CLI needs to set a session up.
type HTTPFetcher struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPFetcher sends token as a bearer credential when it is non-empty.
func NewHTTPFetcher(baseURL, token string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StatusError is a non-2xx reply from the API.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error (status %d)", e.StatusCode)
}

// Is makes client errors other than 429 match ErrPermanentError: retrying
// the same poll cannot succeed.
func (e *StatusError) Is(target error) bool {
	return target == ErrPermanentError &&
		e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

func (f *HTTPFetcher) Advance(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := f.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/poll", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (f *HTTPFetcher) CreateSession(ctx context.Context, criteria model.Criteria) (*model.CreateSessionResponse, error) {
	var out model.CreateSessionResponse
	err := f.do(ctx, http.MethodPost, "/api/sessions", model.CreateSessionRequest{Criteria: criteria}, &out)
	return &out, err
}

func (f *HTTPFetcher) DiscoverProspects(ctx context.Context, sessionID string, req model.DiscoverProspectsRequest) (*model.DiscoverProspectsResponse, error) {
	var out model.DiscoverProspectsResponse
	err := f.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/prospects", req, &out)
	return &out, err
}

func (f *HTTPFetcher) ResearchAdvantages(ctx context.Context, sessionID string, req model.ResearchAdvantagesRequest) (*model.ResearchAdvantagesResponse, error) {
	var out model.ResearchAdvantagesResponse
	err := f.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/advantages", req, &out)
	return &out, err
}

func (f *HTTPFetcher) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var env response.ErrorResponse
		if json.Unmarshal(data, &env) == nil {
			se.Code = env.Error.Code
			se.Message = env.Error.Message
		}
		return se
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
