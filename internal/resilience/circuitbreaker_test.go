package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test"})
	if b.threshold != 5 {
		t.Errorf("threshold = %d, want 5", b.threshold)
	}
	if b.coolDown != 30*time.Second {
		t.Errorf("coolDown = %v, want 30s", b.coolDown)
	}
	if b.State() != BreakerClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 3})

	for range 2 {
		b.Record(errTest)
	}
	if !b.Allow() {
		t.Fatal("breaker open before threshold")
	}

	b.Record(errTest)
	if b.State() != BreakerOpen {
		t.Errorf("state = %v, want open after 3 failures", b.State())
	}
	if b.Allow() {
		t.Error("open breaker allowed a call")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 2})
	b.Record(errTest)
	b.Record(nil)
	b.Record(errTest)

	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed; success must reset the streak", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, CoolDown: 10 * time.Millisecond})
	b.Record(errTest)
	if b.Allow() {
		t.Fatal("open breaker allowed a call")
	}

	time.Sleep(20 * time.Millisecond)

	// First call after the cool-down is the probe.
	if !b.Allow() {
		t.Fatal("probe call denied after cool-down")
	}
	if b.State() != BreakerHalfOpen {
		t.Errorf("state = %v, want half-open", b.State())
	}
	// A second caller must wait for the probe outcome.
	if b.Allow() {
		t.Error("second call allowed during half-open probe")
	}

	b.Record(nil)
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, CoolDown: 10 * time.Millisecond})
	b.Record(errTest)

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("probe call denied")
	}
	b.Record(errTest)

	if b.State() != BreakerOpen {
		t.Errorf("state = %v, want open after failed probe", b.State())
	}
	if b.Allow() {
		t.Error("reopened breaker allowed a call")
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1})
	b.Record(errTest)
	b.Reset()

	if b.State() != BreakerClosed || !b.Allow() {
		t.Error("Reset did not close the breaker")
	}
}
