package engine

import (
	"fmt"
	"time"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"

	"github.com/golioth/golioth-go/coap"
)

// processDatagram implements spec §4.2/§4.1: parse, answer empty-CON
// pings with an empty RST, and dispatch everything else by id/token.
func (s *Session) processDatagram(data []byte) {
	m, err := coap.Parse(data)
	if err != nil {
		s.log.WithError(err).Debug("dropping unparseable datagram")
		return
	}

	if coap.IsEmptyPing(m) {
		rst := coap.EmptyReset(m.MessageID)
		s.sendMu.Lock()
		_ = s.transport.Send(rst)
		s.sendMu.Unlock()
		return
	}

	r := s.table.Match(m.MessageID, m.Token)
	if r == nil {
		s.log.WithField("id", m.MessageID).Debug("no matching request for incoming message")
		return
	}

	if _, hasObserve := coap.GetObserve(m.Options); hasObserve {
		s.handleObserveReply(r, m)
		return
	}
	s.handleDirectReply(r, m)
}

func (s *Session) handleDirectReply(r *Record, m udpmessage.Message) {
	if block, ok := coap.GetBlock2(m.Options); ok {
		s.handleBlockwiseReply(r, m, block)
		return
	}

	r.IsPending = false
	s.table.Remove(r)
	invoke(r, responseFromMessage(m))
}

func (s *Session) handleObserveReply(r *Record, m udpmessage.Message) {
	seq, _ := coap.GetObserve(m.Options)
	now := time.Now()
	first := !r.reply.hasSeen
	if !AcceptNotification(r, seq, now) {
		return // stale notification, dropped silently (spec §4.2 step 3)
	}

	if _, ok := coap.GetBlock2(m.Options); ok {
		// Blockwise Observe is explicitly unsupported (spec §4.4).
		s.table.Remove(r)
		invoke(r, Response{Err: ErrUnsupported})
		return
	}

	if first {
		r.IsPending = false
	}
	if err := invoke(r, responseFromMessage(m)); err != nil {
		s.table.Remove(r)
	}
}

func (s *Session) handleBlockwiseReply(r *Record, m udpmessage.Message, block coap.BlockOption) {
	requestedOffset := r.block.current
	reportedOffset := int(block.Num) * block.Size

	result, offset := AdvanceBlock(&r.block, requestedOffset, reportedOffset, block.Size, block.More)
	switch result {
	case BlockDropDuplicate:
		return
	case BlockDeliverFinal:
		r.IsPending = false
		s.table.Remove(r)
		resp := responseFromMessage(m)
		resp.Off = offset
		resp.GetNext = nil
		invoke(r, resp)
	case BlockDeliverContinue:
		resp := responseFromMessage(m)
		resp.Off = offset
		resp.GetNext = func() { s.fetchNextBlock(r, block) }
		if err := invoke(r, resp); err != nil {
			s.table.Remove(r)
		}
	}
}

// fetchNextBlock rearms retransmission and sends the continuation
// request for the next block (spec §4.4 step 5).
func (s *Session) fetchNextBlock(r *Record, prevBlock coap.BlockOption) {
	next := coap.BlockOption{
		Num:  prevBlock.Num + 1,
		More: false,
		Size: prevBlock.Size,
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	SnapshotPrefix(&r.block, r.buf)
	prefix := RestorePrefix(&r.block, r.buf)
	id := s.ids.Next()
	buf, err := coap.AppendBlock2(prefix, id, next)
	if err != nil {
		s.table.Remove(r)
		invoke(r, Response{Err: ErrBadMessage})
		return
	}
	oldID := r.MessageID
	r.buf = buf
	r.MessageID = id
	s.table.ReKeyID(r, oldID)
	ArmRetransmit(r, time.Now(), s.cfg.AckTimeout, s.cfg.AckRandomFactor, s.cfg.RandomizeAckTimeout)
	if err := s.transport.Send(buf); err != nil {
		s.table.Remove(r)
		invoke(r, Response{Err: ErrShutdown})
		return
	}
	s.Wakeup()
}

func responseFromMessage(m udpmessage.Message) Response {
	var err error
	if m.Code.Class() >= 4 {
		err = KindFromCoAPCode(m.Code)
	}
	return Response{
		Data: m.Payload,
		Err:  err,
	}
}

// retransmitSend is PollPrepare's SendFunc: it resends a record's already
// assembled buffer over the transport, honoring the send serialization
// policy (spec §9, resolved in DESIGN.md).
func (s *Session) retransmitSend(r *Record) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.transport.Send(r.buf)
}

// reapRecord invokes a record's callback once PollPrepare has already
// removed it from the table (timeout path, spec §4.3).
func (s *Session) reapRecord(r *Record, err error) {
	invoke(r, Response{Err: err})
}

// Submit builds, registers, and transmits a new CoAP request, returning
// the token callers can use with Cancel (spec §4.2; §5's synchronous and
// asynchronous adapters both funnel through this single entry point).
func (s *Session) Submit(mt udpmessage.Type, code codes.Code, path coap.PathVector, opts coap.BuildOptions, payload []byte, cb ResponseFunc) (message.Token, error) {
	if !s.Usable() {
		return nil, ErrTransportUnavailable
	}

	token := NewToken()
	id := s.ids.Next()

	buf, err := coap.Build(mt, code, id, token, path, opts, payload)
	if err != nil {
		return nil, fmt.Errorf("golioth: build request: %w", err)
	}

	r := &Record{
		Method:      methodFromCode(code),
		MessageType: messageTypeFromUDP(mt),
		MessageID:   id,
		Token:       token,
		cb:          cb,
		rnd:         s.rnd,
	}
	if opts.Observe {
		r.IsObserve = true
	}
	r.buf = buf
	r.block.preferredSize = coap.PreferredBlockSize(s.cfg.RxBufferSize)

	s.table.Insert(r)

	if mt == udpmessage.Confirmable {
		ArmRetransmit(r, time.Now(), s.cfg.AckTimeout, s.cfg.AckRandomFactor, s.cfg.RandomizeAckTimeout)
	}

	s.sendMu.Lock()
	sendErr := s.transport.Send(buf)
	s.sendMu.Unlock()
	if sendErr != nil {
		s.table.Remove(r)
		return nil, fmt.Errorf("golioth: send request: %w", sendErr)
	}

	s.Wakeup()
	return token, nil
}

// Cancel removes a pending or Observe request from the table without
// invoking its callback (spec §5: explicit cancellation, e.g. stopping an
// Observe subscription).
func (s *Session) Cancel(token message.Token) {
	r := s.table.Match(0, token)
	if r == nil {
		return
	}
	s.table.Remove(r)
}

func methodFromCode(c codes.Code) Method {
	switch c {
	case codes.GET:
		return MethodGet
	case codes.POST:
		return MethodPost
	case codes.PUT:
		return MethodPut
	case codes.DELETE:
		return MethodDelete
	default:
		return MethodGet
	}
}

func messageTypeFromUDP(mt udpmessage.Type) MessageType {
	if mt == udpmessage.NonConfirmable {
		return NonConfirmable
	}
	return Confirmable
}
