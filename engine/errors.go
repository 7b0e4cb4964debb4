package engine

import (
	"fmt"

	"github.com/plgd-dev/go-coap/v2/message/codes"
)

// ErrorKind is a sentinel error kind surfaced to service callbacks (spec §7).
type ErrorKind string

func (e ErrorKind) Error() string { return string(e) }

const (
	// ErrTimeout is returned when retransmission of a Confirmable request
	// is exhausted without a reply.
	ErrTimeout ErrorKind = "golioth: timeout"
	// ErrShutdown is returned to every in-flight request when the
	// transport is closed while it awaits a response.
	ErrShutdown ErrorKind = "golioth: shutdown"
	// ErrTransportUnavailable is returned when a request is submitted
	// while the client is not connected.
	ErrTransportUnavailable ErrorKind = "golioth: transport unavailable"
	// ErrBadMessage is returned on a CoAP parse failure or an unexpected
	// payload shape.
	ErrBadMessage ErrorKind = "golioth: bad message"
	// ErrUnsupported is returned both when a registered Observe notification
	// carries a Block2 option (blockwise Observe is unsupported, spec §4.4)
	// and when a CoAP 4.15 (Unsupported Content-Format) response arrives.
	ErrUnsupported ErrorKind = "golioth: unsupported"
)

// ProtocolError wraps a CoAP 4.xx/5.xx response code (spec §7).
type ProtocolError struct {
	Code codes.Code
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("golioth: protocol error %v", e.Code)
}

// KindFromCoAPCode maps a CoAP response code to the ErrorKind the caller
// sees, per the table in spec §7. Success codes (2.xx) return nil.
func KindFromCoAPCode(c codes.Code) error {
	switch c {
	case codes.Content, codes.Created, codes.Deleted, codes.Valid, codes.Changed:
		return nil
	case codes.Unauthorized, codes.Forbidden, codes.NotAcceptable, codes.MethodNotAllowed, codes.PreconditionFailed:
		return ErrPermission
	case codes.BadOption, codes.RequestEntityIncomplete:
		return ErrInvalid
	case codes.NotFound:
		return ErrNotFound
	case codes.Conflict:
		return ErrBusy
	case codes.RequestEntityTooLarge:
		return ErrTooLarge
	case codes.UnsupportedMediaType:
		return ErrUnsupported
	case codes.UnprocessableEntity:
		return ErrBadMessage
	case codes.TooManyRequests:
		return ErrBusy
	}
	if c.Class() == 5 {
		return ErrBadMessage
	}
	return &ProtocolError{Code: c}
}

// Additional canonical kinds referenced by the mapping table (spec §7):
// 4.01/4.03/4.05/4.06/4.12 -> Permission, 4.02/4.08 -> Invalid,
// 4.04 -> NotFound, 4.09/4.29 -> Busy, 4.13 -> TooLarge,
// 4.15 -> Unsupported, 4.22 -> BadMessage, 5.xx -> BadMessage.
const (
	ErrPermission ErrorKind = "golioth: permission denied"
	ErrInvalid    ErrorKind = "golioth: invalid request"
	ErrNotFound   ErrorKind = "golioth: not found"
	ErrBusy       ErrorKind = "golioth: busy"
	ErrTooLarge   ErrorKind = "golioth: entity too large"
)
