package engine

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/golioth/golioth-go/coap"
)

// ConnState is the session's connection state (spec §4.6).
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session is the single-threaded cooperative session loop (spec §4.6):
// it multiplexes the DTLS socket, a wakeup signal, and pending-request
// deadlines, driving the request table and every service adapter on top
// of it.
type Session struct {
	cfg    Config
	dialer Dialer
	log    logrus.FieldLogger

	table *Table
	rnd   *rand.Rand
	ids   idGenerator

	// sendMu serializes transport writes across user goroutines and the
	// session loop itself (spec §9 "send serialization", resolved in
	// DESIGN.md). A block continuation holds it across reassembling the
	// shared record buffer and sending it; Submit builds its fresh,
	// unshared buffer first and holds it only around the Send call.
	sendMu sync.Mutex

	stateMu   sync.Mutex
	state     ConnState
	transport Transport
	usable    atomic.Bool

	wakeup    chan struct{}
	stopCh    chan struct{}
	stoppedCh chan struct{}

	OnConnect func()
}

// NewSession constructs a Session. cfg must already have been validated
// via Config.Validate.
func NewSession(cfg Config, dialer Dialer, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.New()
		log.(*logrus.Logger).SetOutput(discard{})
	}
	return &Session{
		cfg:       cfg,
		dialer:    dialer,
		log:       log,
		table:     NewTable(),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		wakeup:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Table exposes the request table to service adapters building requests.
func (s *Session) Table() *Table { return s.table }

// State reports the current connection state.
func (s *Session) State() ConnState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Usable reports whether the transport is currently believed writable
// (spec §3: "a bit flag for transport currently usable").
func (s *Session) Usable() bool { return s.usable.Load() }

func (s *Session) setState(st ConnState) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Wakeup signals the session loop to re-evaluate its deadlines without
// waiting for the next socket read or timer (spec §4.6, §5: "one-shot
// edge signal").
func (s *Session) Wakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// Run drives the session loop until ctx is cancelled or Stop is called.
// It implements spec §4.6 in full: connect, loop, and the disconnect path
// that fails every in-flight request with ErrShutdown.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.stoppedCh)
	for {
		select {
		case <-ctx.Done():
			s.disconnect(ErrShutdown)
			return ctx.Err()
		case <-s.stopCh:
			s.disconnect(ErrShutdown)
			return nil
		default:
		}

		if err := s.connect(ctx); err != nil {
			s.log.WithError(err).Warn("connect failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.stopCh:
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		s.runConnected(ctx)
		s.disconnect(ErrShutdown)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		default:
		}
	}
}

// Stop requests a graceful shutdown and blocks until the loop has
// disconnected and failed every pending request with ErrShutdown (spec
// §8 scenario 4: "all 3 callbacks fire with Shutdown before stop
// returns").
func (s *Session) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.stoppedCh
}

func (s *Session) connect(ctx context.Context) error {
	s.setState(Connecting)

	// Resolve the host first so a DNS failure is reported distinctly
	// from a dial failure. The resolved addresses are not used further:
	// the host name goes to the dialer, and the default transport
	// connects to the single address net.ResolveUDPAddr picks; the other
	// addresses are not tried.
	if _, err := net.DefaultResolver.LookupIPAddr(ctx, s.cfg.ServerHost); err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("golioth: resolve %s: %w", s.cfg.ServerHost, err)
	}

	tr, err := s.dialer.Dial(s.cfg.ServerHost, s.cfg.ServerPort)
	if err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("golioth: dial failed: %w", err)
	}

	s.stateMu.Lock()
	s.transport = tr
	s.stateMu.Unlock()

	// An empty CoAP message (token 0, code 0.00) forces the DTLS
	// handshake over the now-connected UDP socket (spec §4.6 step 2).
	ping := coap.EmptyPing(s.ids.Next())
	if err := tr.Send(ping); err != nil {
		tr.Close()
		s.setState(Disconnected)
		return fmt.Errorf("golioth: handshake probe failed: %w", err)
	}

	s.setState(Connected)
	s.usable.Store(true)
	if s.OnConnect != nil {
		s.OnConnect()
	}
	return nil
}

func (s *Session) runConnected(ctx context.Context) {
	recvCh := make(chan recvResult, 4)
	readerDone := make(chan struct{})
	go s.readLoop(recvCh, readerDone)
	defer func() {
		s.transport.Close()
		close(readerDone)
	}()

	now := time.Now()
	recvExpiry := now.Add(s.cfg.ReceiveTimeout)
	pingExpiry := now.Add(s.cfg.PingInterval)

	for {
		now = time.Now()
		engineDeadline := PollPrepare(s.table, now, s.retransmitSend, s.reapRecord)
		deadline := earliest(recvExpiry, pingExpiry, engineDeadline)

		var timer *time.Timer
		var timerCh <-chan time.Time
		if !deadline.IsZero() {
			d := deadline.Sub(now)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerCh = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-s.stopCh:
			stopTimer(timer)
			return
		case res, ok := <-recvCh:
			stopTimer(timer)
			if !ok || res.err != nil {
				s.log.WithError(res.err).Warn("transport closed")
				return
			}
			s.processDatagram(res.data)
			recvExpiry = time.Now().Add(s.cfg.ReceiveTimeout)
			pingExpiry = time.Now().Add(s.cfg.PingInterval)
		case <-s.wakeup:
			stopTimer(timer)
			// Re-evaluate deadlines on the next loop iteration; nothing
			// else to do here (spec §4.6 step 4 "on wakeup").
		case <-timerCh:
			now = time.Now()
			if !now.Before(pingExpiry) {
				s.sendKeepalive()
				pingExpiry = now.Add(s.cfg.PingInterval)
			}
			if !now.Before(recvExpiry) {
				s.log.Warn("receive timeout, disconnecting")
				return
			}
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func earliest(times ...time.Time) time.Time {
	var out time.Time
	for _, t := range times {
		if t.IsZero() {
			continue
		}
		if out.IsZero() || t.Before(out) {
			out = t
		}
	}
	return out
}

type recvResult struct {
	data []byte
	err  error
}

func (s *Session) readLoop(out chan<- recvResult, done <-chan struct{}) {
	buf := make([]byte, s.cfg.RxBufferSize)
	for {
		n, err := s.transport.Recv(buf)
		if err != nil {
			select {
			case out <- recvResult{err: err}:
			case <-done:
			}
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		select {
		case out <- recvResult{data: frame}:
		case <-done:
			return
		}
	}
}

func (s *Session) sendKeepalive() {
	ping := coap.EmptyPing(s.ids.Next())
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.transport.Send(ping); err != nil {
		s.log.WithError(err).Warn("keepalive send failed")
	}
}

// disconnect marks the transport unusable and fails every in-flight
// request with err (spec §4.6 step 5, §7).
func (s *Session) disconnect(err error) {
	s.usable.Store(false)
	s.setState(Disconnected)
	s.stateMu.Lock()
	tr := s.transport
	s.transport = nil
	s.stateMu.Unlock()
	if tr != nil {
		tr.Close()
	}
	s.table.RemoveAll(func(r *Record) {
		invoke(r, Response{Err: err})
	})
}

// invoke calls a record's callback exactly once and returns what it
// returned. Most call sites have already removed r from the table by the
// time they call invoke, so there is nothing left to cancel; the two that
// haven't (an accepted Observe notification, a blockwise continuation)
// use the return value to remove r themselves (spec §5: "a callback that
// returns non-zero cancels the request").
func invoke(r *Record, resp Response) error {
	if r.cb == nil {
		return nil
	}
	return r.cb(resp)
}
