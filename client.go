// Package golioth is a device-side client for the Golioth CoAP/DTLS
// cloud backend: LightDB State/Stream, RPC, Settings, and firmware
// update notifications on top of a hand-built CoAP request/reply engine.
package golioth

import (
	"context"
	"fmt"
	"sync"
	"time"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"
	"github.com/sirupsen/logrus"

	"github.com/golioth/golioth-go/coap"
	"github.com/golioth/golioth-go/engine"
)

// Config is the user-facing configuration surface (spec.md §6
// "Configuration"), translated 1:1 into engine.Config plus the dialer's
// credential material.
type Config struct {
	ServerHost string
	ServerPort int

	RxBufferSize         int
	AckTimeout           time.Duration
	AckRandomFactor      float64
	RandomizeAckTimeout  bool
	PingInterval         time.Duration
	ReceiveTimeout       time.Duration
	RPCMaxMethods        int
	SettingsMaxRespLen   int
	CredentialsTagList   []uint16
	HostnameVerification bool

	Logger logrus.FieldLogger
}

func (c Config) engineConfig() engine.Config {
	return engine.Config{
		ServerHost:           c.ServerHost,
		ServerPort:           c.ServerPort,
		RxBufferSize:         c.RxBufferSize,
		AckTimeout:           c.AckTimeout,
		AckRandomFactor:      c.AckRandomFactor,
		RandomizeAckTimeout:  c.RandomizeAckTimeout,
		PingInterval:         c.PingInterval,
		ReceiveTimeout:       c.ReceiveTimeout,
		RPCMaxMethods:        c.RPCMaxMethods,
		SettingsMaxRespLen:   c.SettingsMaxRespLen,
		CredentialsTagList:   c.CredentialsTagList,
		HostnameVerification: c.HostnameVerification,
	}
}

// Client is the device-side Golioth client: one session loop plus the
// service adapters built on top of it (spec.md §2, §4.7).
type Client struct {
	session *engine.Session
	log     logrus.FieldLogger

	rpc      *rpcRegistry
	settings *settingsRegistry

	settingsMaxRespLen int
}

// Dialer abstracts the transport the session dials; production code uses
// transport.NewDialer, tests use an in-memory fake.
type Dialer = engine.Dialer

// coapToken identifies a submitted request, mainly so it can be handed
// back to CancelObserve.
type coapToken = message.Token

// NewClient constructs a Client. Call Run to start the session loop
// before issuing any requests.
func NewClient(cfg Config, dialer Dialer) (*Client, error) {
	ecfg := cfg.engineConfig()
	if err := ecfg.Validate(); err != nil {
		return nil, fmt.Errorf("golioth: invalid config: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	c := &Client{
		session:            engine.NewSession(ecfg, dialer, log),
		log:                log,
		rpc:                newRPCRegistry(ecfg.RPCMaxMethods),
		settings:           newSettingsRegistry(),
		settingsMaxRespLen: ecfg.SettingsMaxRespLen,
	}
	return c, nil
}

// Run drives the session loop until ctx is cancelled or Stop is called.
// It is intended to run on its own goroutine.
func (c *Client) Run(ctx context.Context) error {
	return c.session.Run(ctx)
}

// Stop requests a graceful shutdown, blocking until every in-flight
// request has been failed with ErrShutdown.
func (c *Client) Stop() {
	c.session.Stop()
}

// State reports the session's connection state, the Go analogue of the
// C SDK's golioth_client_state_get accessor.
func (c *Client) State() engine.ConnState {
	return c.session.State()
}

// Hello performs the unauthenticated connectivity probe GET on the
// "hello" path (spec.md §6).
func (c *Client) Hello(ctx context.Context) error {
	_, err := c.syncCall(ctx, udpmessage.Confirmable, codes.GET, coap.NewPathVector("hello"), coap.BuildOptions{}, nil)
	return err
}

// PushLog POSTs a single device log line to the "logs" path as a
// Non-confirmable request, per spec.md §6's path table. Wiring the
// Zephyr log-backend integration itself is out of scope (spec.md
// Non-goals); this is the bare wire operation.
func (c *Client) PushLog(ctx context.Context, level, msg string) error {
	payload, err := cbor.Marshal(map[string]interface{}{
		"level":   level,
		"message": msg,
	})
	if err != nil {
		return fmt.Errorf("golioth: encode log entry: %w", err)
	}
	_, err = c.asyncSubmit(udpmessage.NonConfirmable, codes.POST, coap.NewPathVector("logs"),
		coap.BuildOptions{HasContent: true, ContentFormat: coap.FormatCBOR}, payload, nil)
	return err
}

// syncCall submits a request and blocks until its first (or only,
// non-blockwise) reply arrives, per spec.md §4.7's sync-form shape: a
// semaphore released by a shim callback, grounded in coap_observe.go's
// longPoll.
func (c *Client) syncCall(ctx context.Context, mt udpmessage.Type, code codes.Code, path coap.PathVector, opts coap.BuildOptions, payload []byte) (engine.Response, error) {
	var (
		wg   sync.WaitGroup
		resp engine.Response
	)
	wg.Add(1)
	_, err := c.asyncSubmit(mt, code, path, opts, payload, func(r engine.Response) error {
		resp = r
		wg.Done()
		return nil
	})
	if err != nil {
		return engine.Response{}, err
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return resp, resp.Err
	case <-ctx.Done():
		return engine.Response{}, ctx.Err()
	}
}

func (c *Client) asyncSubmit(mt udpmessage.Type, code codes.Code, path coap.PathVector, opts coap.BuildOptions, payload []byte, cb engine.ResponseFunc) (message.Token, error) {
	return c.session.Submit(mt, code, path, opts, payload, cb)
}
