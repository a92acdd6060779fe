package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	appconfig "liqfeed/config"
	"liqfeed/internal/models"
)

// venue answers /info requests by request type.
type venue map[string]func(w http.ResponseWriter, req infoRequest)

func (v venue) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		var req infoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h, ok := v[req.Type]
		if !ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		h(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func reply(body string) func(http.ResponseWriter, infoRequest) {
	return func(w http.ResponseWriter, _ infoRequest) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(appconfig.VenueConfig{URL: url, Timeout: 2 * time.Second, UserAgent: "liqfeed-test"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	if _, err := NewClient(appconfig.VenueConfig{URL: "not a url"}); err == nil {
		t.Fatalf("expected error for invalid url")
	}
	if _, err := NewClient(appconfig.VenueConfig{URL: "http://localhost", LocalIP: "nope"}); err == nil {
		t.Fatalf("expected error for invalid local ip")
	}
}

func TestUserAgentIsSent(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`["0xabc"]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got, _ := agent.Load().(string); got != "liqfeed-test" {
		t.Fatalf("user agent = %q", got)
	}
}

func TestUnexpectedStatusIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Poll(context.Background(), "0xa")
	var pe *PollError
	if !errors.As(err, &pe) || pe.Kind != PollUnreachable {
		t.Fatalf("expected unreachable poll error, got %v", err)
	}
	if s := c.Stats(); s.Requests != 1 || s.Failures != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestDiscoverPrimary(t *testing.T) {
	srv := venue{
		"vaults": reply(`[{"vaultAddress":"0xBBB"},{"address":"0xaaa"},"0xbbb",{"name":"no address"}]`),
		"meta": func(w http.ResponseWriter, _ infoRequest) {
			t.Errorf("fallback queried although primary succeeded")
		},
	}.server(t)

	got, err := newTestClient(t, srv.URL).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []models.VaultAddress{"0xaaa", "0xbbb"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("vaults = %v, want %v", got, want)
	}
}

func TestDiscoverFallsBackOnEmptyPrimary(t *testing.T) {
	srv := venue{
		"vaults": reply(`[]`),
		"meta":   reply(`{"universe":[{"name":"BTC"},{"name":"ETH","vaultAddress":"0xC"}]}`),
	}.server(t)

	got, err := newTestClient(t, srv.URL).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 1 || got[0] != "0xc" {
		t.Fatalf("vaults = %v, want [0xc]", got)
	}
}

func TestDiscoverFallsBackOnMalformedPrimary(t *testing.T) {
	srv := venue{
		"vaults": reply(`{"error":"unknown"}`),
		"meta":   reply(`{"vaults":["0xd",{"vaultAddress":"0xe"}]}`),
	}.server(t)

	got, err := newTestClient(t, srv.URL).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 2 || got[0] != "0xd" || got[1] != "0xe" {
		t.Fatalf("vaults = %v", got)
	}
}

func TestDiscoverErrors(t *testing.T) {
	tests := []struct {
		name string
		v    venue
		want DiscoveryErrorKind
	}{
		{
			name: "empty",
			v:    venue{"vaults": reply(`[]`), "meta": reply(`{"universe":[]}`)},
			want: DiscoveryEmptyResult,
		},
		{
			name: "malformed",
			v:    venue{"vaults": reply(`[1,2]`), "meta": reply(`[1,2]`)},
			want: DiscoveryMalformed,
		},
		{
			name: "empty primary, fallback down",
			v:    venue{"vaults": reply(`[]`)},
			want: DiscoveryEmptyResult,
		},
		{
			name: "primary down, empty fallback",
			v:    venue{"meta": reply(`{"universe":[]}`)},
			want: DiscoveryEmptyResult,
		},
		{
			name: "both down",
			v:    venue{},
			want: DiscoveryUnreachable,
		},
		{
			name: "empty primary, malformed fallback",
			v:    venue{"vaults": reply(`[]`), "meta": reply(`"meta"`)},
			want: DiscoveryMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := tt.v.server(t)
			_, err := newTestClient(t, srv.URL).Discover(context.Background())
			var de *DiscoveryError
			if !errors.As(err, &de) {
				t.Fatalf("expected DiscoveryError, got %v", err)
			}
			if de.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", de.Kind, tt.want)
			}
		})
	}
}

func TestDiscoverUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).Discover(context.Background())
	var de *DiscoveryError
	if !errors.As(err, &de) || de.Kind != DiscoveryUnreachable {
		t.Fatalf("expected unreachable, got %v", err)
	}
}

func TestPollNormalizesAndSkipsBadEntries(t *testing.T) {
	srv := venue{
		"userFills": func(w http.ResponseWriter, req infoRequest) {
			if req.User != "0xvault" {
				t.Errorf("user = %q", req.User)
			}
			_, _ = w.Write([]byte(`[
				{"coin":"BTC","px":"60000.5","sz":"0.25","side":"A","time":1700000000000,"hash":"0xh1","tid":11,
				 "liquidation":{"liquidatedUser":"0xUSER","markPx":"59990","method":"market"}},
				{"coin":"eth","px":3000,"sz":"2","side":"B","time":1700000005000,"hash":"0xh2","tid":12},
				{"coin":"SOL","px":"bad","sz":"1","side":"B","time":1700000006000,"tid":13},
				{"coin":"SOL","px":"10","sz":"1","side":"X","time":1700000006000,"tid":14},
				{"coin":"SOL","px":"10","sz":"1","side":"B","time":1700000006000},
				"garbage"
			]`))
		},
	}.server(t)

	c := newTestClient(t, srv.URL)
	got, err := c.Poll(context.Background(), "0xvault")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2: %+v", len(got), got)
	}

	first, second := got[0], got[1]
	if first.TradeID != "12" || first.Side != models.SideBuy || first.Coin != "ETH" || first.Price != 3000 {
		t.Fatalf("unexpected first record %+v", first)
	}
	if second.TradeID != "11" || second.Side != models.SideSell || second.Size != 0.25 {
		t.Fatalf("unexpected second record %+v", second)
	}
	if !second.Timestamp.Equal(time.UnixMilli(1700000000000)) || second.Vault != "0xvault" {
		t.Fatalf("unexpected timestamp or vault %+v", second)
	}
	if second.Liquidation == nil || second.Liquidation.LiquidatedUser != "0xuser" || second.Liquidation.MarkPrice != 59990 {
		t.Fatalf("liquidation block not carried: %+v", second.Liquidation)
	}
	if s := c.Stats(); s.SkippedEntries != 4 {
		t.Fatalf("skipped = %d, want 4", s.SkippedEntries)
	}
}

func TestPollHashFallbackID(t *testing.T) {
	srv := venue{
		"userFills": reply(`[{"coin":"BTC","px":"1","sz":"1","side":"B","time":1700000000000,"hash":"0xhash"}]`),
	}.server(t)

	got, err := newTestClient(t, srv.URL).Poll(context.Background(), "0xa")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 1 || got[0].TradeID != "0xhash" {
		t.Fatalf("records = %+v", got)
	}
}

func TestPollEmptyIsNotAnError(t *testing.T) {
	srv := venue{"userFills": reply(`[]`)}.server(t)

	got, err := newTestClient(t, srv.URL).Poll(context.Background(), "0xa")
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestPollMalformedResponse(t *testing.T) {
	srv := venue{"userFills": reply(`{"fills":[]}`)}.server(t)

	_, err := newTestClient(t, srv.URL).Poll(context.Background(), "0xa")
	var pe *PollError
	if !errors.As(err, &pe) || pe.Kind != PollMalformed || pe.Vault != "0xa" {
		t.Fatalf("expected malformed poll error, got %v", err)
	}
}

func TestPollTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := venue{
		"userFills": func(w http.ResponseWriter, req infoRequest) {
			<-release
		},
	}.server(t)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestClient(t, srv.URL).Poll(ctx, "0xa")
	var pe *PollError
	if !errors.As(err, &pe) || pe.Kind != PollTimeout {
		t.Fatalf("expected timeout poll error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("poll took %s after the deadline", elapsed)
	}
}
