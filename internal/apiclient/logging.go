package apiclient

import (
	"log/slog"
	"net/url"
	"strings"
)

// LogRequest logs an outbound call without its query string, which carries API keys.
func LogRequest(logger *slog.Logger, provider, method, endpoint string) {
	if logger == nil || (method == "" && endpoint == "") {
		return
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	logger.Debug("provider request", "provider", provider, "method", method, "url", RedactURL(endpoint))
}

func RedactURL(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		if idx := strings.Index(endpoint, "?"); idx >= 0 {
			return endpoint[:idx]
		}
		return endpoint
	}
	parsed.User = nil
	parsed.RawQuery = ""
	parsed.Fragment = ""
	if parsed.Scheme != "" || parsed.Host != "" {
		return parsed.Scheme + "://" + parsed.Host + parsed.Path
	}
	if parsed.Path != "" {
		return parsed.Path
	}
	return parsed.String()
}
