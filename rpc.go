package golioth

import (
	"fmt"
	"sync"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"

	"github.com/golioth/golioth-go/coap"
	"github.com/golioth/golioth-go/engine"
)

// RPCStatus is the canonical gRPC-style status set the C SDK's rpc.c
// reports back to the backend.
type RPCStatus int

const (
	RPCOK                 RPCStatus = 0
	RPCCancelled          RPCStatus = 1
	RPCUnknown            RPCStatus = 2
	RPCInvalidArgument    RPCStatus = 3
	RPCDeadlineExceeded   RPCStatus = 4
	RPCNotFound           RPCStatus = 5
	RPCAlreadyExists      RPCStatus = 6
	RPCPermissionDenied   RPCStatus = 7
	RPCResourceExhausted  RPCStatus = 8
	RPCFailedPrecondition RPCStatus = 9
	RPCAborted            RPCStatus = 10
	RPCOutOfRange         RPCStatus = 11
	RPCUnimplemented      RPCStatus = 12
	RPCInternal           RPCStatus = 13
	RPCUnavailable        RPCStatus = 14
	RPCDataLoss           RPCStatus = 15
	RPCUnauthenticated    RPCStatus = 16
)

// RPCParams is the array cursor handlers read typed call arguments from
// (spec.md §4.7 step 3: "reads typed params from the decoded array
// cursor").
type RPCParams struct {
	raw []cbor.RawMessage
	idx int
}

func (p *RPCParams) next() (cbor.RawMessage, bool) {
	if p.idx >= len(p.raw) {
		return nil, false
	}
	v := p.raw[p.idx]
	p.idx++
	return v, true
}

// Len reports how many parameters remain unread.
func (p *RPCParams) Len() int { return len(p.raw) - p.idx }

func (p *RPCParams) NextString() (string, error) {
	v, ok := p.next()
	if !ok {
		return "", fmt.Errorf("golioth: rpc: no more params")
	}
	var s string
	if err := cbor.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("golioth: rpc: param not a string: %w", err)
	}
	return s, nil
}

func (p *RPCParams) NextInt64() (int64, error) {
	v, ok := p.next()
	if !ok {
		return 0, fmt.Errorf("golioth: rpc: no more params")
	}
	var n int64
	if err := cbor.Unmarshal(v, &n); err != nil {
		return 0, fmt.Errorf("golioth: rpc: param not an integer: %w", err)
	}
	return n, nil
}

func (p *RPCParams) NextFloat64() (float64, error) {
	v, ok := p.next()
	if !ok {
		return 0, fmt.Errorf("golioth: rpc: no more params")
	}
	var f float64
	if err := cbor.Unmarshal(v, &f); err != nil {
		return 0, fmt.Errorf("golioth: rpc: param not a float: %w", err)
	}
	return f, nil
}

func (p *RPCParams) NextBool() (bool, error) {
	v, ok := p.next()
	if !ok {
		return false, fmt.Errorf("golioth: rpc: no more params")
	}
	var b bool
	if err := cbor.Unmarshal(v, &b); err != nil {
		return false, fmt.Errorf("golioth: rpc: param not a bool: %w", err)
	}
	return b, nil
}

// RPCResponse is the map cursor handlers write the "detail" fields of a
// response into (spec.md §4.7 step 3).
type RPCResponse struct {
	detail map[string]interface{}
}

func (r *RPCResponse) SetString(key, value string) { r.detail[key] = value }
func (r *RPCResponse) SetInt64(key string, value int64) { r.detail[key] = value }
func (r *RPCResponse) SetFloat64(key string, value float64) { r.detail[key] = value }
func (r *RPCResponse) SetBool(key string, value bool) { r.detail[key] = value }

// RPCHandler implements one registered remote-procedure method.
type RPCHandler func(params *RPCParams, resp *RPCResponse) RPCStatus

// rpcRegistry is the fixed-capacity, mutex-guarded method table (spec.md
// §4.7: "fixed-capacity table of registered methods (default cap 8)...
// Registration is mutex-guarded; a full table returns NoSpace").
type rpcRegistry struct {
	mu       sync.Mutex
	capacity int
	handlers map[string]RPCHandler
}

func newRPCRegistry(capacity int) *rpcRegistry {
	return &rpcRegistry{capacity: capacity, handlers: make(map[string]RPCHandler)}
}

// ErrRPCNoSpace is returned by RegisterRPCMethod when the method table is
// already at capacity.
var ErrRPCNoSpace = fmt.Errorf("golioth: rpc method table full")

func (reg *rpcRegistry) register(method string, h RPCHandler) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.handlers[method]; exists {
		reg.handlers[method] = h
		return nil
	}
	if len(reg.handlers) >= reg.capacity {
		return ErrRPCNoSpace
	}
	reg.handlers[method] = h
	return nil
}

func (reg *rpcRegistry) lookup(method string) (RPCHandler, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	h, ok := reg.handlers[method]
	return h, ok
}

// RegisterRPCMethod adds (or replaces) a handler for method, returning
// ErrRPCNoSpace if the table is full.
func (c *Client) RegisterRPCMethod(method string, h RPCHandler) error {
	return c.rpc.register(method, h)
}

type rpcCall struct {
	ID     string            `cbor:"id"`
	Method string            `cbor:"method"`
	Params []cbor.RawMessage `cbor:"params"`
}

type rpcReply struct {
	ID         string                 `cbor:"id"`
	StatusCode int                    `cbor:"statusCode"`
	Detail     map[string]interface{} `cbor:"detail"`
}

// StartRPC registers the Observe on .rpc that receives incoming calls and
// dispatches them to registered handlers (spec.md §4.7 "RPC").
func (c *Client) StartRPC() (coapToken, error) {
	return c.asyncSubmit(udpmessage.Confirmable, codes.GET, coap.NewPathVector(".rpc"),
		coap.BuildOptions{Observe: true, HasAccept: true, Accept: coap.FormatCBOR}, nil, c.handleRPCNotification)
}

func (c *Client) handleRPCNotification(r engine.Response) error {
	if r.Err != nil {
		return nil
	}
	var call rpcCall
	if err := cbor.Unmarshal(r.Data, &call); err != nil {
		c.log.WithError(err).Warn("rpc: malformed call notification")
		return nil
	}

	reply := rpcReply{ID: call.ID, Detail: map[string]interface{}{}}
	handler, ok := c.rpc.lookup(call.Method)
	if !ok {
		reply.StatusCode = int(RPCUnknown)
	} else {
		params := &RPCParams{raw: call.Params}
		resp := &RPCResponse{detail: reply.Detail}
		reply.StatusCode = int(handler(params, resp))
	}

	payload, err := cbor.Marshal(reply)
	if err != nil {
		c.log.WithError(err).Warn("rpc: failed to encode status reply")
		return nil
	}
	_, err = c.asyncSubmit(udpmessage.Confirmable, codes.POST, coap.NewPathVector(".rpc", "status"),
		coap.BuildOptions{HasContent: true, ContentFormat: coap.FormatCBOR}, payload, nil)
	if err != nil {
		c.log.WithError(err).Warn("rpc: failed to post status reply")
	}
	return nil
}
