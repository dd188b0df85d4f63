package traffic

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewTracker(clock.Now), clock
}

func TestRequestCount_Empty(t *testing.T) {
	tr, _ := newTestTracker()
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

func TestRequestCount_AllOutcomes(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Record(OutcomeSuccess)
	tr.Record(OutcomeError)
	tr.Record(OutcomeDenied)
	if n := tr.RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
	if n := tr.Count(OutcomeDenied, time.Minute); n != 1 {
		t.Errorf("Count(denied) = %d, want 1", n)
	}
}

// TestErrorRate_DeniedExcluded verifies denials do not count toward the error rate.
func TestErrorRate_DeniedExcluded(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Record(OutcomeSuccess)
	tr.Record(OutcomeSuccess)
	tr.Record(OutcomeError)
	tr.Record(OutcomeDenied)
	errors, total := tr.ErrorRate(time.Minute)
	if errors != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errors, total)
	}
}

func TestWindow_ExcludesOldOutcomes(t *testing.T) {
	tr, clock := newTestTracker()
	tr.Record(OutcomeError)
	clock.Advance(2 * time.Minute)
	tr.Record(OutcomeSuccess)

	errors, total := tr.ErrorRate(time.Minute)
	if errors != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", errors, total)
	}
	if n := tr.RequestCount(5 * time.Minute); n != 2 {
		t.Errorf("RequestCount(5m) = %d, want 2", n)
	}
}

func TestPrune_DropsBeyondRetention(t *testing.T) {
	tr, clock := newTestTracker()
	tr.Record(OutcomeSuccess)
	clock.Advance(retention + time.Second)
	tr.Record(OutcomeSuccess)
	if got := len(tr.times[OutcomeSuccess]); got != 1 {
		t.Errorf("retained timestamps = %d, want 1", got)
	}
}

func TestPackageLevel_ResetClears(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordError()
	RecordDenied()
	if n := RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
	if n := DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount() = %d, want 1", n)
	}
	Reset()
	if e, total := ErrorRate(time.Minute); e != 0 || total != 0 {
		t.Errorf("after Reset ErrorRate() = (%d, %d), want (0, 0)", e, total)
	}
}
