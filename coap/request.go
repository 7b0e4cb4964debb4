package coap

import (
	"encoding/binary"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"
)

// BuildOptions describes the optional CoAP options a request may carry.
// Zero values mean "omit this option".
type BuildOptions struct {
	ContentFormat message.MediaType
	HasContent    bool
	Accept        message.MediaType
	HasAccept     bool
	Observe       bool
}

// Build assembles a complete CoAP message for the given method, path
// vector, and payload, and returns the fully marshaled datagram. The
// datagram carries no Block2 option, so its full length is what the
// engine later snapshots as the saved_prefix_before_block2 the first time
// a block continuation is needed (spec §3, §4.4 step 1).
func Build(mt udpmessage.Type, code codes.Code, id uint16, token message.Token, path PathVector, opts BuildOptions, payload []byte) (buf []byte, err error) {
	var options message.Options
	var optBuf []byte

	options, optBuf, err = path.AppendUriPath(options, optBuf)
	if err != nil {
		return nil, err
	}

	if opts.HasContent {
		var n int
		options, n, err = options.SetContentFormat(optBuf, opts.ContentFormat)
		if err == message.ErrTooSmall {
			optBuf = append(optBuf, make([]byte, n)...)
			options, n, err = options.SetContentFormat(optBuf, opts.ContentFormat)
		}
		if err != nil {
			return nil, err
		}
		optBuf = optBuf[n:]
	}
	if opts.HasAccept {
		var n int
		options, n, err = options.SetAccept(optBuf, opts.Accept)
		if err == message.ErrTooSmall {
			optBuf = append(optBuf, make([]byte, n)...)
			options, n, err = options.SetAccept(optBuf, opts.Accept)
		}
		if err != nil {
			return nil, err
		}
		optBuf = optBuf[n:]
	}
	if opts.Observe {
		var n int
		options, n, err = options.SetObserve(optBuf, 0)
		if err == message.ErrTooSmall {
			optBuf = append(optBuf, make([]byte, n)...)
			options, n, err = options.SetObserve(optBuf, 0)
		}
		if err != nil {
			return nil, err
		}
		optBuf = optBuf[n:]
	}

	msg := udpmessage.Message{
		Code:      code,
		Token:     token,
		Options:   options,
		Payload:   payload,
		MessageID: id,
		Type:      mt,
	}

	size, err := msg.Size()
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	n, err := msg.MarshalTo(out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// optBlock2 is the CoAP option number for Block2 (RFC 7959 §2.1).
const optBlock2 = 23

// AppendBlock2 rewrites prefixBuf - the bytes captured by
// blockCtx.SnapshotPrefix before any Block2 option existed - into a fresh
// Block2 continuation request, reassigning the message id (spec §4.4 step
// 1-2: "restore the snapshot and append a fresh Block2 option with
// updated block number/size/more-bit... Assign a new message id per
// continuation; keep the token").
//
// Options are appended in ascending option-number order and Block2 is
// always the last and highest numbered option this client ever sends, so
// the new option's delta is Block2's number minus whatever option number
// the prefix's last option actually encodes - which varies with the
// request (a bare GET ends in Uri-Path 11, an Accept-bearing GET ends in
// Accept 17) - so the delta is computed by walking the prefix's option
// bytes rather than assumed; this mirrors how the C SDK's coap_req.c
// manipulates the raw option bytes directly instead of rebuilding the
// whole option set.
func AppendBlock2(prefixBuf []byte, id uint16, block BlockOption) ([]byte, error) {
	lastOpt, err := lastOptionNumber(prefixBuf)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(prefixBuf))
	copy(out, prefixBuf)
	binary.BigEndian.PutUint16(out[2:4], id)

	val := encodeBlockValue(block.Encode())
	out = append(out, encodeOptionHeader(optBlock2-lastOpt, len(val))...)
	out = append(out, val...)
	return out, nil
}

// lastOptionNumber walks a marshaled CoAP message's option list and
// returns the cumulative option number of the last one, which is what
// the next appended option's delta must be computed against (RFC 7252
// §3.1). buf is assumed payload-free (every prefix this client snapshots
// is a GET with no body), so there is no 0xFF payload marker to stop at
// short of running out of option bytes.
func lastOptionNumber(buf []byte) (int, error) {
	if len(buf) < 4 {
		return 0, ErrShortMessage
	}
	tkl := int(buf[0] & 0x0F)
	pos := 4 + tkl
	if pos > len(buf) {
		return 0, ErrShortMessage
	}

	last := 0
	for pos < len(buf) {
		head := buf[pos]
		if head == 0xFF {
			break
		}
		pos++

		delta, pos2, err := readOptionField(buf, pos, int(head>>4))
		if err != nil {
			return 0, err
		}
		pos = pos2

		length, pos3, err := readOptionField(buf, pos, int(head&0x0F))
		if err != nil {
			return 0, err
		}
		pos = pos3

		last += delta
		pos += length
	}
	return last, nil
}

// readOptionField decodes one delta or length nibble (RFC 7252 §3.1),
// returning the field's value and the buffer offset just past any
// extended bytes it consumed.
func readOptionField(buf []byte, pos, nibble int) (value, next int, err error) {
	switch {
	case nibble < 13:
		return nibble, pos, nil
	case nibble == 13:
		if pos >= len(buf) {
			return 0, 0, ErrShortMessage
		}
		return int(buf[pos]) + 13, pos + 1, nil
	case nibble == 14:
		if pos+1 >= len(buf) {
			return 0, 0, ErrShortMessage
		}
		return int(buf[pos])<<8 | int(buf[pos+1]) + 269, pos + 2, nil
	default:
		return 0, 0, ErrBadMessage
	}
}

// encodeBlockValue renders a Block option's uint value in the minimum
// number of big-endian bytes (RFC 7959 §2.1), since CoAP option values
// carry no explicit length byte beyond the option header itself.
func encodeBlockValue(v uint32) []byte {
	switch {
	case v == 0:
		return nil
	case v < 1<<8:
		return []byte{byte(v)}
	case v < 1<<16:
		return []byte{byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// encodeOptionHeader renders the delta/length nibble-pair (and any
// extended bytes) of a CoAP option header per RFC 7252 §3.1.
func encodeOptionHeader(delta, length int) []byte {
	var out []byte
	dNib, dExt := nibble(delta)
	lNib, lExt := nibble(length)
	out = append(out, byte(dNib<<4|lNib))
	out = append(out, dExt...)
	out = append(out, lExt...)
	return out
}

func nibble(v int) (int, []byte) {
	switch {
	case v < 13:
		return v, nil
	case v < 269:
		return 13, []byte{byte(v - 13)}
	default:
		ext := v - 269
		return 14, []byte{byte(ext >> 8), byte(ext)}
	}
}

// Parse decodes a raw datagram into its message-id, token, code, and
// options/payload view (spec §4.1, §4.2 step 1). The minimum parseable
// message is the 4-byte header (spec §4.1); shorter input returns
// ErrShortMessage.
func Parse(data []byte) (udpmessage.Message, error) {
	var m udpmessage.Message
	if len(data) < 4 {
		return m, ErrShortMessage
	}
	_, err := m.Unmarshal(data)
	return m, err
}

// EmptyReset builds the empty RST the engine answers an empty CON ping
// with (spec §4.1), echoing the ping's message id and its (always empty)
// token.
func EmptyReset(id uint16) []byte {
	return emptyMessage(udpmessage.Reset, id)
}

// EmptyPing builds the empty CON (token 0, code 0.00) used both to force
// the initial DTLS handshake at connect time and as the periodic
// keepalive (spec §4.6 steps 2 and 4).
func EmptyPing(id uint16) []byte {
	return emptyMessage(udpmessage.Confirmable, id)
}

func emptyMessage(t udpmessage.Type, id uint16) []byte {
	out := make([]byte, 4)
	out[0] = (1 << 6) | (byte(t) << 4) // Ver=1, TKL=0
	out[1] = byte(codes.Empty)
	binary.BigEndian.PutUint16(out[2:4], id)
	return out
}
