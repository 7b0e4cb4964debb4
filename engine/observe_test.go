package engine

import (
	"testing"
	"time"
)

// TestObserveReorderScenario follows spec §8 scenario 2 exactly.
func TestObserveReorderScenario(t *testing.T) {
	base := time.Unix(0, 0)
	r := &Record{IsObserve: true}

	if !AcceptNotification(r, 0, base) {
		t.Fatal("seq=0 at t=0 should be accepted (first notification)")
	}
	if !AcceptNotification(r, 1, base.Add(1*time.Second)) {
		t.Fatal("seq=1 at t=1s should be accepted")
	}
	if AcceptNotification(r, 0, base.Add(2*time.Second)) {
		t.Fatal("seq=0 at t=2s should be rejected (stale, within window)")
	}
	if !AcceptNotification(r, 2, base.Add(3*time.Second)) {
		t.Fatal("seq=2 at t=3s should be accepted")
	}
	if !AcceptNotification(r, 0, base.Add(200*time.Second)) {
		t.Fatal("seq=0 at t=200s should be accepted (older than 128s window)")
	}
}

func TestIsFresherNotificationSequenceRollover(t *testing.T) {
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Second)
	if !IsFresherNotification(10, t0, 20, t1) {
		t.Error("v2 > v1 within span should be fresher")
	}
	if IsFresherNotification(20, t0, 10, t1) {
		t.Error("v2 < v1 within span should not be fresher")
	}
	// rollover: v1 near the 24-bit max, v2 wrapped to a small number
	v1 := uint32(1<<24 - 1)
	v2 := uint32(5)
	if !IsFresherNotification(v1, t0, v2, t1) {
		t.Error("v1 > v2 by more than span should be fresher (rollover)")
	}
}

func TestIsFresherNotification128sWindow(t *testing.T) {
	t0 := time.Unix(0, 0)
	t2 := t0.Add(129 * time.Second)
	if !IsFresherNotification(100, t0, 1, t2) {
		t.Error("any sequence after 128s window must be accepted")
	}
}
