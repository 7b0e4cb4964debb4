package engine

import (
	"math/rand"
	"testing"
	"time"
)

func newTestRecord() *Record {
	return &Record{
		MessageType: Confirmable,
		rnd:         rand.New(rand.NewSource(1)),
	}
}

// TestTimeoutProgression follows spec §8 scenario 3: with ACK_TIMEOUT=2000ms
// and no randomization, transmissions fire at t ~ {0, 2000, 6000, 14000}
// and Timeout fires at t ~ 30000.
func TestTimeoutProgression(t *testing.T) {
	table := NewTable()
	r := newTestRecord()
	r.Token = tok(1)
	start := time.Unix(0, 0)
	ArmRetransmit(r, start, DefaultAckTimeout, DefaultAckRandomFactor, false)
	table.Insert(r)

	var sendTimes []time.Duration
	send := func(rec *Record) error {
		sendTimes = append(sendTimes, rec.pending.t0.Sub(start))
		return nil
	}
	var timedOutAt time.Duration
	reap := func(rec *Record, err error) {
		if err != ErrTimeout {
			t.Fatalf("unexpected reap error: %v", err)
		}
	}

	now := start
	for i := 0; i < 10 && table.Len() > 0; i++ {
		deadline := PollPrepare(table, now, send, reap)
		if deadline.IsZero() {
			timedOutAt = now.Sub(start)
			break
		}
		now = deadline
	}

	want := []time.Duration{2000 * time.Millisecond, 6000 * time.Millisecond, 14000 * time.Millisecond}
	if len(sendTimes) != len(want) {
		t.Fatalf("got %d resends %v, want %d", len(sendTimes), sendTimes, len(want))
	}
	for i, w := range want {
		if sendTimes[i] != w {
			t.Errorf("resend %d at %v, want %v", i, sendTimes[i], w)
		}
	}
	if timedOutAt != 30000*time.Millisecond {
		t.Errorf("timeout at %v, want 30000ms", timedOutAt)
	}
}

func TestPollPrepareSkipsNonPendingObserve(t *testing.T) {
	table := NewTable()
	r := newTestRecord()
	r.Token = tok(2)
	r.IsObserve = true
	r.IsPending = false
	table.Insert(r)

	called := false
	deadline := PollPrepare(table, time.Now(), func(*Record) error { called = true; return nil }, func(*Record, error) {})
	if called {
		t.Error("observe record with IsPending=false must not be retransmitted")
	}
	if !deadline.IsZero() {
		t.Error("no pending deadlines should mean zero deadline")
	}
}

func TestPollPrepareNeverRetriesNonConfirmable(t *testing.T) {
	table := NewTable()
	r := newTestRecord()
	r.Token = tok(3)
	r.MessageType = NonConfirmable
	ArmRetransmit(r, time.Now(), DefaultAckTimeout, DefaultAckRandomFactor, false)
	table.Insert(r)

	called := false
	PollPrepare(table, time.Now().Add(time.Hour), func(*Record) error { called = true; return nil }, func(*Record, error) {})
	if called {
		t.Error("NON requests must never be retransmitted")
	}
}

func tok(b byte) []byte { return []byte{b} }
