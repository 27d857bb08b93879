// Package apiclient holds the HTTP plumbing shared by the places and weather
// provider clients.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"libraryfinder/internal/query"
)

const userAgent = "libraryfinder/1.0"

type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// GetJSON issues a GET against base+path and decodes the JSON body into target.
// Client errors other than 429 come back marked permanent.
func GetJSON(ctx context.Context, httpClient *http.Client, logger *slog.Logger, provider, base, path string, params url.Values, target any) error {
	u, err := url.Parse(base)
	if err != nil {
		return query.Permanent(fmt.Errorf("parse %s url: %w", provider, err))
	}
	if path != "" {
		joined, err := url.JoinPath(u.Path, path)
		if err != nil {
			return query.Permanent(err)
		}
		u.Path = joined
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return query.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	LogRequest(logger, provider, http.MethodGet, u.String())

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if !IsRetryableStatus(resp.StatusCode) && resp.StatusCode < 500 {
			return query.Permanent(apiErr)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}

func IsRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsRetryable reports whether err is a transient status worth trying elsewhere.
func IsRetryable(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && IsRetryableStatus(apiErr.StatusCode)
}

func IsRateLimited(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.StatusCode == http.StatusTooManyRequests
}
