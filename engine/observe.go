package engine

import "time"

// observeWindow is the RFC 7641 §3.4 reordering time window: a
// notification is always accepted once this long has elapsed since the
// last accepted one, regardless of sequence number.
const observeWindow = 128 * time.Second

// sequenceSpan is 2^23, the rollover point for the 24-bit Observe
// sequence space (RFC 7641 §3.4).
const sequenceSpan = 1 << 23

// IsFresherNotification implements the freshness rule of spec §4.2 step 3
// / §4.5 / §8: given the previously accepted sequence v1 at time t1, and
// a candidate sequence v2 at time t2, report whether v2 should be
// accepted.
func IsFresherNotification(v1 uint32, t1 time.Time, v2 uint32, t2 time.Time) bool {
	if t2.Sub(t1) > observeWindow {
		return true
	}
	if v1 < v2 && v2-v1 < sequenceSpan {
		return true
	}
	if v1 > v2 && v1-v2 > sequenceSpan {
		return true
	}
	return false
}

// AcceptNotification updates r's reply state if seq at now passes the
// freshness check (or if this is the first notification ever seen),
// returning whether it was accepted.
func AcceptNotification(r *Record, seq uint32, now time.Time) bool {
	if !r.reply.hasSeen {
		r.reply.lastSeq = seq
		r.reply.lastSeen = now
		r.reply.hasSeen = true
		return true
	}
	if !IsFresherNotification(r.reply.lastSeq, r.reply.lastSeen, seq, now) {
		return false
	}
	r.reply.lastSeq = seq
	r.reply.lastSeen = now
	return true
}
