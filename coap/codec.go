package coap

import (
	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"
)

// BlockSizes are the CoAP block sizes in bytes (2^(4+SZX)), largest
// first, used to pick a preferred block size that fits a receive buffer
// (spec §4.4).
var BlockSizes = []int{1024, 512, 256, 128, 64, 32, 16}

// PreferredBlockSize returns the largest CoAP block size that fits
// entirely within rxBufferSize, defaulting to the smallest size if the
// buffer is smaller than even that.
func PreferredBlockSize(rxBufferSize int) int {
	for _, sz := range BlockSizes {
		if sz <= rxBufferSize {
			return sz
		}
	}
	return BlockSizes[len(BlockSizes)-1]
}

// IsEmptyPing reports whether m is an empty Confirmable message with a
// zero-length token and code 0.00 - the CoAP ping, which the session loop
// must answer with an empty Reset (spec §4.1).
func IsEmptyPing(m udpmessage.Message) bool {
	return m.Type == udpmessage.Confirmable && m.Code == codes.Code(0) && len(m.Token) == 0 && len(m.Payload) == 0
}

// GetObserve reports the Observe option's value, if present.
func GetObserve(opts message.Options) (uint32, bool) {
	v, err := opts.GetUint32(message.Observe)
	return v, err == nil
}

// GetBlock2 reports the decoded Block2 option, if present.
func GetBlock2(opts message.Options) (BlockOption, bool) {
	v, err := opts.GetUint32(message.Block2)
	if err != nil {
		return BlockOption{}, false
	}
	return DecodeBlockOption(v), true
}

// BlockOption describes a Block1/Block2 option's decoded fields.
type BlockOption struct {
	Num  uint32
	More bool
	Size int
}

// Encode packs the block option fields into the unsigned wire value (up
// to 3 bytes) used for Block1/Block2 (RFC 7959 §2.1): NUM (big end), M, SZX.
func (b BlockOption) Encode() uint32 {
	szx := szxFromSize(b.Size)
	v := b.Num << 4
	if b.More {
		v |= 0x08
	}
	v |= uint32(szx)
	return v
}

// DecodeBlockOption unpacks a raw Block1/Block2 wire value.
func DecodeBlockOption(v uint32) BlockOption {
	szx := v & 0x07
	return BlockOption{
		Num:  v >> 4,
		More: v&0x08 != 0,
		Size: sizeFromSZX(int(szx)),
	}
}

func szxFromSize(size int) int {
	switch size {
	case 16:
		return 0
	case 32:
		return 1
	case 64:
		return 2
	case 128:
		return 3
	case 256:
		return 4
	case 512:
		return 5
	case 1024:
		return 6
	default:
		return 6
	}
}

func sizeFromSZX(szx int) int {
	if szx < 0 || szx > 6 {
		szx = 6
	}
	return 16 << uint(szx)
}
