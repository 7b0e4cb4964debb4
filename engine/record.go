package engine

import (
	"math/rand"
	"time"

	"github.com/plgd-dev/go-coap/v2/message"
)

// Method is the CoAP request method (spec §3).
type Method int

const (
	MethodGet Method = iota
	MethodPost
	MethodPut
	MethodDelete
)

// MessageType is CON or NON (spec §3). The engine defaults to Confirmable
// for user requests.
type MessageType int

const (
	Confirmable MessageType = iota
	NonConfirmable
)

// Response is the view a request's callback receives on every reply,
// including intermediate blockwise responses (spec §9's "response view"
// design note).
type Response struct {
	Data    []byte
	Off     int
	Total   int
	Err     error
	GetNext func()
}

// ResponseFunc is invoked on every reply, timeout, or cancellation. It
// must be non-blocking and must not re-enter a synchronous engine call
// (spec §5). Returning a non-nil error cancels the request.
type ResponseFunc func(Response) error

// blockCtx is the blockwise receive bookkeeping for a single request
// (spec §3 "block_ctx").
type blockCtx struct {
	preferredSize int
	current       int
	total         int // 0 if unknown
	havePrefix    bool
	prefixLen     int // length of buf before the first Block2 option was appended
}

// pendingState is the per-request retransmission bookkeeping (spec §3
// "pending" / spec §4.3).
type pendingState struct {
	t0      time.Time
	timeout time.Duration
	retries int
}

// replyState is the Observe reordering bookkeeping (spec §3 "reply" /
// spec §4.2 step 3).
type replyState struct {
	lastSeq  uint32
	lastSeen time.Time
	hasSeen  bool
}

// Record is one outstanding CoAP exchange (spec §3 "Request record").
// The request table is its sole owner: callbacks only ever observe it
// through the ResponseFunc/Response, and the engine frees it at the
// moment of completion, timeout, or cancellation.
type Record struct {
	Method      Method
	MessageType MessageType
	MessageID   uint16
	Token       message.Token

	buf              []byte
	savedPrefixBlock int

	block   blockCtx
	pending pendingState
	reply   replyState

	IsObserve bool
	IsPending bool

	cb       ResponseFunc
	rnd      *rand.Rand
	ackRand  float64
	ackStart time.Duration
}

func newPendingState(now time.Time, t0 time.Duration, retries int) pendingState {
	return pendingState{t0: now, timeout: t0, retries: retries}
}
