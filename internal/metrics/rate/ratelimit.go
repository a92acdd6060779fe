package rate

import (
	"net/http"
	"strings"

	"liqfeed/logger"
)

// ReportRateLimitExceeded records a rate-limit rejection from the venue for
// one request type.
func ReportRateLimitExceeded(log *logger.Log, venue, requestType, ip string) {
	component := strings.ToLower(venue) + "_" + strings.ToLower(requestType)
	l := log.WithComponent(component)
	fields := logger.Fields{
		"venue": strings.ToLower(venue),
		"type":  strings.ToLower(requestType),
	}
	if ip != "" {
		fields["ip"] = ip
	}
	l.LogMetric(component, "rate_limit_exceeded", int64(1), "counter", fields)
	l.WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan records that the venue refused the source address outright.
func ReportIPBan(log *logger.Log, venue, requestType, ip string) {
	component := strings.ToLower(venue) + "_" + strings.ToLower(requestType)
	l := log.WithComponent(component)
	fields := logger.Fields{
		"venue": strings.ToLower(venue),
		"type":  strings.ToLower(requestType),
	}
	if ip != "" {
		fields["ip"] = ip
	}
	l.LogMetric(component, "ip_ban", int64(1), "counter", fields)
	l.WithFields(fields).Error("ip banned")
}

// detectLimit classifies a non-200 response by status code and body text.
func detectLimit(status int, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	ipBan = status == http.StatusForbidden && strings.Contains(lowerMsg, "ip") ||
		strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "ban") || strings.Contains(lowerMsg, "blocked"))
	rateLimit = !ipBan && (status == http.StatusTooManyRequests ||
		strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests"))
	return
}

// ReportLimitFromResponse records the matching metric when a response is a
// rate-limit or ban signal and reports whether it was one.
func ReportLimitFromResponse(log *logger.Log, venue, requestType, ip string, status int, msg string) bool {
	rateLimit, ipBan := detectLimit(status, msg)
	if rateLimit {
		ReportRateLimitExceeded(log, venue, requestType, ip)
	}
	if ipBan {
		ReportIPBan(log, venue, requestType, ip)
	}
	return rateLimit || ipBan
}
