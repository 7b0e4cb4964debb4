package engine

import (
	"crypto/rand"
	"sync/atomic"

	"github.com/plgd-dev/go-coap/v2/message"
)

// idGenerator hands out 16-bit CoAP message ids, wrapping per spec §3
// ("message_id: 16-bit, assigned on each transmission").
type idGenerator struct {
	next uint32
}

func (g *idGenerator) Next() uint16 {
	return uint16(atomic.AddUint32(&g.next, 1))
}

// NewToken returns a random 8-byte token (spec §3: "token: 8 bytes
// random, stable across retransmissions and across a blockwise
// sequence"). Token collisions are checked by the caller against the live
// request table (spec §3 invariant).
func NewToken() message.Token {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is unrecoverable; a fallback would
		// silently weaken the token-uniqueness guarantee.
		panic("golioth: crypto/rand unavailable: " + err.Error())
	}
	return message.Token(b)
}
