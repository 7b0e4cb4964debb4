package engine

import (
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"

	"github.com/golioth/golioth-go/coap"
)

type fakeTransport struct {
	sent [][]byte
}

func (f *fakeTransport) Send(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.sent = append(f.sent, cp)
	return nil
}
func (f *fakeTransport) Recv(buf []byte) (int, error) { return 0, nil }
func (f *fakeTransport) Close() error                 { return nil }

func newTestSession() (*Session, *fakeTransport) {
	cfg := DefaultConfig()
	cfg.ServerHost = "example.invalid"
	s := NewSession(cfg, nil, nil)
	tr := &fakeTransport{}
	s.transport = tr
	s.usable.Store(true)
	return s, tr
}

func TestSubmitRegistersAndSendsRecord(t *testing.T) {
	s, tr := newTestSession()

	var got Response
	token, err := s.Submit(udpmessage.Confirmable, codes.GET, coap.NewPathVector("hello"), coap.BuildOptions{}, nil,
		func(r Response) error { got = r; return nil })
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(tr.sent))
	}
	if s.table.Len() != 1 {
		t.Fatalf("expected one record in table, got %d", s.table.Len())
	}

	r := s.table.Match(0, token)
	if r == nil {
		t.Fatal("record not found by its own token")
	}
	if !r.IsPending {
		t.Error("confirmable request should be armed for retransmission")
	}

	reply, err := coap.Build(udpmessage.Confirmable, codes.Content, r.MessageID, token, nil, coap.BuildOptions{}, []byte("hi"))
	if err != nil {
		t.Fatalf("building reply: %v", err)
	}
	s.processDatagram(reply)

	if string(got.Data) != "hi" {
		t.Fatalf("callback got %q, want %q", got.Data, "hi")
	}
	if got.Err != nil {
		t.Fatalf("unexpected error: %v", got.Err)
	}
	if s.table.Len() != 0 {
		t.Error("record should be removed once its final reply arrives")
	}
}

func TestSubmitWhenNotUsableFails(t *testing.T) {
	s, _ := newTestSession()
	s.usable.Store(false)

	_, err := s.Submit(udpmessage.Confirmable, codes.GET, coap.NewPathVector("hello"), coap.BuildOptions{}, nil, nil)
	if err != ErrTransportUnavailable {
		t.Fatalf("got %v, want ErrTransportUnavailable", err)
	}
}

func TestProcessDatagramAnswersEmptyPingWithReset(t *testing.T) {
	s, tr := newTestSession()

	ping := coap.EmptyPing(11)
	s.processDatagram(ping)

	if len(tr.sent) != 1 {
		t.Fatalf("expected one RST reply, got %d sends", len(tr.sent))
	}
	m, err := coap.Parse(tr.sent[0])
	if err != nil {
		t.Fatalf("parsing reply: %v", err)
	}
	if m.Type != udpmessage.Reset || m.MessageID != 11 {
		t.Fatalf("got type=%v id=%d, want Reset/11", m.Type, m.MessageID)
	}
}

func TestProcessDatagramAppliesProtocolErrorMapping(t *testing.T) {
	s, _ := newTestSession()

	var got Response
	token, err := s.Submit(udpmessage.Confirmable, codes.GET, coap.NewPathVector("hello"), coap.BuildOptions{}, nil,
		func(r Response) error { got = r; return nil })
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	r := s.table.Match(0, token)

	reply, err := coap.Build(udpmessage.Confirmable, codes.NotFound, r.MessageID, token, nil, coap.BuildOptions{}, nil)
	if err != nil {
		t.Fatalf("building reply: %v", err)
	}
	s.processDatagram(reply)

	if got.Err != ErrNotFound {
		t.Fatalf("got err %v, want ErrNotFound", got.Err)
	}
}

func TestProcessDatagramDropsStaleObserveNotification(t *testing.T) {
	s, _ := newTestSession()

	var notifications []Response
	token, err := s.Submit(udpmessage.Confirmable, codes.GET, coap.NewPathVector(".d", "x"),
		coap.BuildOptions{Observe: true}, nil,
		func(r Response) error { notifications = append(notifications, r); return nil })
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	r := s.table.Match(0, token)

	sendNotify := func(seq uint32) {
		opts, buf, err := message.Options{}.SetObserve(nil, seq)
		if err == message.ErrTooSmall {
			opts, buf, err = message.Options{}.SetObserve(make([]byte, buf), seq)
		}
		if err != nil {
			t.Fatalf("SetObserve: %v", err)
		}
		msg := udpmessage.Message{
			Code:      codes.Content,
			Token:     token,
			Options:   opts,
			Payload:   []byte{byte(seq)},
			MessageID: r.MessageID,
			Type:      udpmessage.Confirmable,
		}
		size, err := msg.Size()
		if err != nil {
			t.Fatalf("Size: %v", err)
		}
		out := make([]byte, size)
		n, err := msg.MarshalTo(out)
		if err != nil {
			t.Fatalf("MarshalTo: %v", err)
		}
		_ = buf
		s.processDatagram(out[:n])
	}

	sendNotify(5)
	sendNotify(3) // stale: lower sequence, within the reorder window
	sendNotify(6)

	if len(notifications) != 2 {
		t.Fatalf("got %d notifications, want 2 (seq 3 should be dropped)", len(notifications))
	}
	if string(notifications[0].Data) != string([]byte{5}) || string(notifications[1].Data) != string([]byte{6}) {
		t.Fatalf("unexpected notification payloads: %v", notifications)
	}
}

func TestReapRecordInvokesTimeoutCallback(t *testing.T) {
	s, _ := newTestSession()
	var got Response
	r := &Record{cb: func(resp Response) error { got = resp; return nil }}
	s.reapRecord(r, ErrTimeout)
	if got.Err != ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", got.Err)
	}
}

func TestRetransmitSendWritesRecordBuffer(t *testing.T) {
	s, tr := newTestSession()
	r := &Record{buf: []byte("abc")}
	if err := s.retransmitSend(r); err != nil {
		t.Fatalf("retransmitSend: %v", err)
	}
	if len(tr.sent) != 1 || string(tr.sent[0]) != "abc" {
		t.Fatalf("got %v, want one send of \"abc\"", tr.sent)
	}
}

var _ = time.Second
