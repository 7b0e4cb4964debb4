package coap

import "errors"

// ErrShortMessage is returned by Parse when a datagram is too short to
// contain even a CoAP header (spec §4.1: "Minimum parseable message is 4
// bytes").
var ErrShortMessage = errors.New("coap: message shorter than 4-byte header")

// ErrBadMessage is returned when an option header carries the reserved
// nibble value 15 outside of the 0xFF payload marker (RFC 7252 §3.1).
var ErrBadMessage = errors.New("coap: malformed option header")
