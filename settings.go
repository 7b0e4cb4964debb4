package golioth

import (
	"sync"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"

	"github.com/golioth/golioth-go/coap"
	"github.com/golioth/golioth-go/engine"
)

// SettingsErrorCode is the per-key status the settings service reports
// back to the backend (spec.md §4.7 "Settings error enum").
type SettingsErrorCode int

const (
	SettingsSuccess             SettingsErrorCode = 0
	SettingsKeyNotRecognized    SettingsErrorCode = 1
	SettingsKeyNotValid         SettingsErrorCode = 2
	SettingsValueFormatNotValid SettingsErrorCode = 3
	SettingsValueOutsideRange   SettingsErrorCode = 4
	SettingsValueStringTooLong  SettingsErrorCode = 5
	SettingsGeneralError        SettingsErrorCode = 6
)

// maxSettingsKeyLen is the 63-byte-plus-terminator key bound the C SDK's
// settings.c enforces.
const maxSettingsKeyLen = 63

// SettingsHandler is invoked once per key in an incoming settings
// notification (spec.md §4.7 "Settings"). value is a string, int64,
// float64, or bool, decoded per the CBOR major-type dispatch rule.
type SettingsHandler func(key string, value interface{}) SettingsErrorCode

// settingsRegistry holds the single registered settings handler. Unlike
// RPC, spec.md describes one callback invoked per key, not a method
// table.
type settingsRegistry struct {
	mu      sync.Mutex
	handler SettingsHandler
}

func newSettingsRegistry() *settingsRegistry {
	return &settingsRegistry{}
}

func (reg *settingsRegistry) set(h SettingsHandler) {
	reg.mu.Lock()
	reg.handler = h
	reg.mu.Unlock()
}

func (reg *settingsRegistry) get() SettingsHandler {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.handler
}

// OnSettings registers the handler invoked for every key in an incoming
// settings notification.
func (c *Client) OnSettings(h SettingsHandler) {
	c.settings.set(h)
}

type settingsNotification struct {
	Settings map[string]cbor.RawMessage `cbor:"settings"`
	Version  int64                      `cbor:"version"`
}

type settingsKeyError struct {
	SettingKey string `cbor:"setting_key"`
	ErrorCode  int    `cbor:"error_code"`
}

type settingsReply struct {
	Errors  []settingsKeyError `cbor:"errors,omitempty"`
	Version int64              `cbor:"version"`
}

// StartSettings registers the Observe on .c that receives settings
// notifications and dispatches each key to the registered handler
// (spec.md §4.7 "Settings").
func (c *Client) StartSettings() (coapToken, error) {
	return c.asyncSubmit(udpmessage.Confirmable, codes.GET, coap.NewPathVector(".c"),
		coap.BuildOptions{Observe: true, HasAccept: true, Accept: coap.FormatCBOR}, nil, c.handleSettingsNotification)
}

func (c *Client) handleSettingsNotification(r engine.Response) error {
	if r.Err != nil {
		return nil
	}
	var notif settingsNotification
	if err := cbor.Unmarshal(r.Data, &notif); err != nil {
		c.log.WithError(err).Warn("settings: malformed notification")
		return nil
	}

	handler := c.settings.get()
	reply := settingsReply{Version: notif.Version}
	for key, raw := range notif.Settings {
		code := c.applyOneSetting(handler, key, raw)
		if code != SettingsSuccess {
			reply.Errors = append(reply.Errors, settingsKeyError{SettingKey: key, ErrorCode: int(code)})
		}
	}

	payload, err := cbor.Marshal(reply)
	if err != nil {
		c.log.WithError(err).Warn("settings: failed to encode status reply")
		return nil
	}
	if c.settingsMaxRespLen > 0 && len(payload) > c.settingsMaxRespLen {
		// Drop the per-key detail and report a single general error
		// rather than sending a reply the backend will reject outright.
		reply.Errors = []settingsKeyError{{ErrorCode: int(SettingsGeneralError)}}
		payload, err = cbor.Marshal(reply)
		if err != nil {
			c.log.WithError(err).Warn("settings: failed to encode truncated status reply")
			return nil
		}
	}
	_, err = c.asyncSubmit(udpmessage.Confirmable, codes.POST, coap.NewPathVector(".c", "status"),
		coap.BuildOptions{HasContent: true, ContentFormat: coap.FormatCBOR}, payload, nil)
	if err != nil {
		c.log.WithError(err).Warn("settings: failed to post status reply")
	}
	return nil
}

func (c *Client) applyOneSetting(handler SettingsHandler, key string, raw cbor.RawMessage) SettingsErrorCode {
	if len(key) > maxSettingsKeyLen {
		return SettingsKeyNotValid
	}

	value, ok := decodeSettingsValue(raw)
	if !ok {
		// Unrecognized type: synthesized without calling the user
		// (spec.md §4.7 "Settings").
		return SettingsValueFormatNotValid
	}
	if handler == nil {
		return SettingsKeyNotRecognized
	}
	return handler(key, value)
}

// decodeSettingsValue implements the major-type dispatch of spec.md
// §4.7: text string -> String; positive/negative int -> Int64; simple
// type -> float first, then bool.
func decodeSettingsValue(raw cbor.RawMessage) (interface{}, bool) {
	var s string
	if err := cbor.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var i int64
	if err := cbor.Unmarshal(raw, &i); err == nil {
		return i, true
	}
	var u uint64
	if err := cbor.Unmarshal(raw, &u); err == nil {
		return int64(u), true
	}
	var f float64
	if err := cbor.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var b bool
	if err := cbor.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	return nil, false
}
