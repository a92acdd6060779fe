package health

import (
	"errors"
	"testing"
	"time"

	"liqfeed/internal/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTracker(now *time.Time) *Tracker {
	return NewTracker(WithClock(func() time.Time { return *now }))
}

func TestStaleVaultsThresholdBoundary(t *testing.T) {
	now := base
	tr := newTracker(&now)
	threshold := 5 * time.Minute

	tr.Track("0xold")
	tr.Track("0xfresh")
	tr.RecordSuccess("0xold", 1, base.Add(-threshold-time.Second))
	tr.RecordSuccess("0xfresh", 1, base.Add(-threshold+time.Second))

	stale := tr.StaleVaults(threshold)
	if len(stale) != 1 || stale[0] != "0xold" {
		t.Fatalf("stale = %v, want [0xold]", stale)
	}
	if tr.AllStale(threshold) {
		t.Fatalf("AllStale true with a fresh vault")
	}
}

func TestExactThresholdIsNotStale(t *testing.T) {
	now := base
	tr := newTracker(&now)
	tr.Track("0xa")
	tr.RecordSuccess("0xa", 1, base.Add(-time.Minute))

	if got := tr.StaleVaults(time.Minute); len(got) != 0 {
		t.Fatalf("vault at exactly the threshold reported stale: %v", got)
	}
}

func TestVaultWithoutFillsIsAlwaysStale(t *testing.T) {
	now := base
	tr := newTracker(&now)
	tr.Track("0xa")
	tr.RecordSuccess("0xa", 0, time.Time{})

	h, _ := tr.Get("0xa")
	if h.LastSuccessAt != base || h.HasFills() {
		t.Fatalf("unexpected health after zero-fill poll: %+v", h)
	}
	if got := tr.StaleVaults(time.Hour); len(got) != 1 {
		t.Fatalf("zero-fill vault not stale: %v", got)
	}
	if !tr.AllStale(time.Hour) {
		t.Fatalf("AllStale false with only a zero-fill vault")
	}
}

func TestZeroFillSuccessKeepsLastFill(t *testing.T) {
	now := base
	tr := newTracker(&now)
	tr.Track("0xa")
	fill := base.Add(-2 * time.Minute)
	tr.RecordSuccess("0xa", 2, fill)

	now = base.Add(time.Minute)
	tr.RecordSuccess("0xa", 0, time.Time{})
	// an older timestamp must not move LastFillAt backwards
	tr.RecordSuccess("0xa", 1, fill.Add(-time.Hour))

	h, _ := tr.Get("0xa")
	if !h.LastFillAt.Equal(fill) {
		t.Fatalf("LastFillAt = %v, want %v", h.LastFillAt, fill)
	}
	if !h.LastPollAt.Equal(now) {
		t.Fatalf("LastPollAt = %v, want %v", h.LastPollAt, now)
	}
}

func TestFailureCounting(t *testing.T) {
	now := base
	tr := newTracker(&now)
	tr.Track("0xa")
	tr.RecordSuccess("0xa", 1, base)

	now = base.Add(10 * time.Second)
	tr.RecordFailure("0xa", errors.New("timeout"))
	if n := tr.RecordFailure("0xa", errors.New("timeout")); n != 2 {
		t.Fatalf("consecutive failures = %d, want 2", n)
	}

	h, _ := tr.Get("0xa")
	if h.LastFillAt != base || h.LastPollAt != now || h.LastError != "timeout" || h.TotalFailures != 2 {
		t.Fatalf("unexpected health after failures: %+v", h)
	}

	tr.RecordSuccess("0xa", 0, time.Time{})
	h, _ = tr.Get("0xa")
	if h.ConsecutiveFailures != 0 || h.TotalFailures != 2 || h.LastError != "" {
		t.Fatalf("success did not reset failures: %+v", h)
	}
}

func TestForgetAndTrack(t *testing.T) {
	now := base
	tr := newTracker(&now)
	if !tr.Track("0xa") || tr.Track("0xa") {
		t.Fatalf("Track should report only the first insertion")
	}
	tr.Track("0xb")
	tr.Forget("0xa")

	if _, ok := tr.Get("0xa"); ok {
		t.Fatalf("forgotten vault still tracked")
	}
	tr.RecordFailure("0xa", nil)
	if _, ok := tr.Get("0xa"); ok {
		t.Fatalf("failure recorded for an untracked vault")
	}
	if got := tr.Vaults(); len(got) != 1 || got[0] != models.VaultAddress("0xb") {
		t.Fatalf("vaults = %v", got)
	}
}

func TestAllStaleWithNothingTracked(t *testing.T) {
	tr := NewTracker()
	if !tr.AllStale(time.Minute) {
		t.Fatalf("AllStale false with no vaults")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	now := base
	tr := newTracker(&now)
	tr.Track("0xa")
	snap := tr.Snapshot()
	h := snap["0xa"]
	h.ConsecutiveFailures = 99
	snap["0xa"] = h

	if got, _ := tr.Get("0xa"); got.ConsecutiveFailures != 0 {
		t.Fatalf("tracker mutated through snapshot")
	}
}
