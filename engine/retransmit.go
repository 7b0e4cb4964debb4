package engine

import (
	"math/rand"
	"time"
)

// Retransmission defaults (spec §4.3).
const (
	DefaultAckTimeout      = 2000 * time.Millisecond
	DefaultAckRandomFactor = 1.5
	MaxRetries             = 3 // 4 total transmissions
)

// initialTimeout returns a configuration-randomized T0 in
// [ackTimeout, ackTimeout*ackRandomFactor) when randomize is true, else
// exactly ackTimeout (spec §4.3).
func initialTimeout(rnd *rand.Rand, ackTimeout time.Duration, ackRandomFactor float64, randomize bool) time.Duration {
	if !randomize || ackRandomFactor <= 1.0 {
		return ackTimeout
	}
	span := float64(ackTimeout) * (ackRandomFactor - 1.0)
	return ackTimeout + time.Duration(rnd.Float64()*span)
}

// SendFunc retransmits one already-assembled record's buffer unchanged
// (same message id); it returns the transport's send error, if any.
type SendFunc func(*Record) error

// PollPrepare drives the retransmission timer across the whole table
// (spec §4.3). For every record whose deadline has passed, it either
// resends (and reschedules) or times the record out (removing it from the
// table and handing it to reap with ErrTimeout). It returns the
// earliest deadline across all records still in the table, or zero Time
// if the table is empty.
//
// Observe records that are not currently pending a registration (i.e.
// IsObserve && !IsPending) are skipped - they have no retransmission
// deadline (spec §4.3).
func PollPrepare(table *Table, now time.Time, send SendFunc, reap func(*Record, error)) time.Time {
	var deadline time.Time
	var toReap []*Record
	var toSend []*Record

	table.Each(func(r *Record) {
		if r.IsObserve && !r.IsPending {
			return
		}
		if !r.IsPending {
			return
		}
		if r.MessageType == NonConfirmable {
			// NON is fire-and-forget: never retried (spec §7).
			return
		}
		next := r.pending.t0.Add(r.pending.timeout)
		if !now.Before(next) {
			if r.pending.retries <= 0 {
				toReap = append(toReap, r)
				return
			}
			toSend = append(toSend, r)
			return
		}
		if deadline.IsZero() || next.Before(deadline) {
			deadline = next
		}
	})

	for _, r := range toReap {
		table.Remove(r)
		reap(r, ErrTimeout)
	}

	for _, r := range toSend {
		r.pending.retries--
		r.pending.timeout *= 2
		r.pending.t0 = now
		if err := send(r); err != nil {
			table.Remove(r)
			reap(r, err)
			continue
		}
		next := now.Add(r.pending.timeout)
		if deadline.IsZero() || next.Before(deadline) {
			deadline = next
		}
	}

	return deadline
}

// ArmRetransmit (re)initializes a record's retransmission state for its
// first transmission, choosing a randomized T0 per spec §4.3.
func ArmRetransmit(r *Record, now time.Time, ackTimeout time.Duration, ackRandomFactor float64, randomize bool) {
	t0 := initialTimeout(r.rnd, ackTimeout, ackRandomFactor, randomize)
	r.pending = newPendingState(now, t0, MaxRetries)
	r.IsPending = true
}
