package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
)

// Vendors often report quota and plan problems inside a 200 body.
var bodyPatterns = []struct {
	category failure.Category
	patterns []string
}{
	{failure.RateLimited, []string{"rate limit", "too many requests", "call frequency", "quota exceeded", "request count exceeded"}},
	{failure.AuthInvalid, []string{"invalid api key", "invalid apikey", "unauthorized", "api key is missing"}},
	{failure.EntitlementDenied, []string{"premium", "upgrade your plan", "not entitled", "subscription", "forbidden"}},
}

// Classify maps an error returned by a provider call to a category.
func Classify(err error) failure.Category {
	if err == nil {
		return ""
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr.Category
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return failure.Timeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failure.Timeout
	}

	return failure.NetworkError
}

// ClassifyStatus maps a non-2xx HTTP status code to a category. 2xx codes
// have no category; unexpected 1xx and 3xx answers count as server errors.
func ClassifyStatus(code int) failure.Category {
	switch {
	case code >= 200 && code < 300:
		return ""
	case code == http.StatusTooManyRequests:
		return failure.RateLimited
	case code == http.StatusUnauthorized:
		return failure.AuthInvalid
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return failure.Timeout
	case code >= 500:
		return failure.ServerError
	case code >= 400:
		return failure.EntitlementDenied
	default:
		return failure.ServerError
	}
}

// ClassifyBody inspects a successful response body for vendor error notes.
func ClassifyBody(body []byte) failure.Category {
	lower := strings.ToLower(string(body))
	for _, group := range bodyPatterns {
		for _, p := range group.patterns {
			if strings.Contains(lower, p) {
				return group.category
			}
		}
	}
	return ""
}
