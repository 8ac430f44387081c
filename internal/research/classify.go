package research

import (
	"errors"
	"net/http"
	"strings"

	"github.com/prospectlens/api/internal/client"
	"github.com/prospectlens/api/internal/model"
)

var quotaHints = []string{"quota", "credit", "billing", "insufficient"}

// Classify maps a backend failure onto one of the provider error kinds.
// Anything that is not a recognizable rate or quota signal, including
// transport errors and timeouts, is treated as the backend being unavailable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pe *model.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests && mentionsQuota(apiErr.Body):
			return model.NewProviderError(model.ErrProviderQuotaExhausted, err)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return model.NewProviderError(model.ErrProviderRateLimited, err)
		case apiErr.StatusCode == http.StatusPaymentRequired:
			return model.NewProviderError(model.ErrProviderQuotaExhausted, err)
		}
	}
	return model.NewProviderError(model.ErrProviderUnavailable, err)
}

func mentionsQuota(body string) bool {
	body = strings.ToLower(body)
	for _, hint := range quotaHints {
		if strings.Contains(body, hint) {
			return true
		}
	}
	return false
}

// UserMessage is the text stored on a failed job or dossier.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrProviderRateLimited):
		return "Research provider is rate limited, try again in a few minutes"
	case errors.Is(err, model.ErrProviderQuotaExhausted):
		return "Research provider credits are exhausted, add credits to continue"
	case errors.Is(err, model.ErrProviderUnavailable):
		return "Research provider is unavailable, try again later"
	default:
		return "Research failed"
	}
}
