package rate

import (
	"net/http"
	"testing"

	"liqfeed/logger"
)

func TestReportRateLimitExceeded(t *testing.T) {
	log := logger.GetLogger()
	ReportRateLimitExceeded(log, "hyperliquid", "userFills", "127.0.0.1")
}

func TestReportIPBan(t *testing.T) {
	log := logger.GetLogger()
	ReportIPBan(log, "hyperliquid", "userFills", "")
}

func TestDetectLimit(t *testing.T) {
	cases := []struct {
		status int
		msg    string
		rate   bool
		ban    bool
	}{
		{http.StatusTooManyRequests, "", true, false},
		{http.StatusOK, "Too many requests", true, false},
		{http.StatusForbidden, "IP address not allowed", false, true},
		{http.StatusTeapot, "IP has been blocked for 60 seconds", false, true},
		{http.StatusBadGateway, "upstream error", false, false},
	}
	for _, c := range cases {
		rl, ban := detectLimit(c.status, c.msg)
		if rl != c.rate || ban != c.ban {
			t.Fatalf("detectLimit(%d, %q) = %v,%v want %v,%v", c.status, c.msg, rl, ban, c.rate, c.ban)
		}
	}
}

func TestReportLimitFromResponse(t *testing.T) {
	log := logger.GetLogger()
	if !ReportLimitFromResponse(log, "hyperliquid", "meta", "", http.StatusTooManyRequests, "") {
		t.Fatalf("expected 429 to be reported")
	}
	if ReportLimitFromResponse(log, "hyperliquid", "meta", "", http.StatusInternalServerError, "boom") {
		t.Fatalf("500 should not be reported as a limit")
	}
}
