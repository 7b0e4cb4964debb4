package golioth

import (
	"context"

	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"

	"github.com/golioth/golioth-go/coap"
	"github.com/golioth/golioth-go/engine"
)

// lightDBStatePrefix is prepended to every LightDB State path (spec.md §6).
const lightDBStatePrefix = ".d"

func lightDBStatePath(path string) coap.PathVector {
	return coap.NewPathVector(lightDBStatePrefix, path)
}

// LightDBStateGetAsync issues a GET under .d/<path>, invoking cb with the
// response body once it arrives (spec.md §4.7 "get").
func (c *Client) LightDBStateGetAsync(path string, format coap.ContentFormat, cb engine.ResponseFunc) error {
	_, err := c.asyncSubmit(udpmessage.Confirmable, codes.GET, lightDBStatePath(path),
		coap.BuildOptions{HasAccept: true, Accept: format}, nil, cb)
	return err
}

// LightDBStateGet blocks until the GET under .d/<path> completes.
func (c *Client) LightDBStateGet(ctx context.Context, path string, format coap.ContentFormat) ([]byte, error) {
	resp, err := c.syncCall(ctx, udpmessage.Confirmable, codes.GET, lightDBStatePath(path),
		coap.BuildOptions{HasAccept: true, Accept: format}, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// LightDBStateSetAsync POSTs data under .d/<path>. suppressResponse omits
// Accept and discards whatever body the server sends back - used where
// only the ACK matters (spec.md §4.7 "set").
func (c *Client) LightDBStateSetAsync(path string, format coap.ContentFormat, data []byte, suppressResponse bool, cb engine.ResponseFunc) error {
	opts := coap.BuildOptions{HasContent: true, ContentFormat: format}
	if suppressResponse {
		cb = dropBody(cb)
	}
	_, err := c.asyncSubmit(udpmessage.Confirmable, codes.POST, lightDBStatePath(path), opts, data, cb)
	return err
}

// LightDBStateSet blocks until the POST under .d/<path> completes.
func (c *Client) LightDBStateSet(ctx context.Context, path string, format coap.ContentFormat, data []byte) error {
	_, err := c.syncCall(ctx, udpmessage.Confirmable, codes.POST, lightDBStatePath(path),
		coap.BuildOptions{HasContent: true, ContentFormat: format}, data)
	return err
}

// LightDBStateDeleteAsync issues a DELETE under .d/<path>.
func (c *Client) LightDBStateDeleteAsync(path string, cb engine.ResponseFunc) error {
	_, err := c.asyncSubmit(udpmessage.Confirmable, codes.DELETE, lightDBStatePath(path), coap.BuildOptions{}, nil, cb)
	return err
}

// LightDBStateDelete blocks until the DELETE under .d/<path> completes.
func (c *Client) LightDBStateDelete(ctx context.Context, path string) error {
	_, err := c.syncCall(ctx, udpmessage.Confirmable, codes.DELETE, lightDBStatePath(path), coap.BuildOptions{}, nil)
	return err
}

// LightDBStateObserve registers an Observe on .d/<path>; cb is invoked on
// every update the backend pushes. Cancel with the returned token.
func (c *Client) LightDBStateObserve(path string, format coap.ContentFormat, cb engine.ResponseFunc) (coapToken, error) {
	return c.asyncSubmit(udpmessage.Confirmable, codes.GET, lightDBStatePath(path),
		coap.BuildOptions{Observe: true, HasAccept: true, Accept: format}, nil, cb)
}

// CancelObserve stops a registered Observe without invoking its callback
// (spec.md §5: explicit cancellation).
func (c *Client) CancelObserve(token coapToken) {
	c.session.Cancel(token)
}

// dropBody wraps cb so a successful reply's body is discarded before the
// callback sees it, implementing the "suppress response body" flag
// resolved in DESIGN.md: the request still completes, the body just never
// reaches the caller.
func dropBody(cb engine.ResponseFunc) engine.ResponseFunc {
	return func(r engine.Response) error {
		if cb == nil {
			return nil
		}
		r.Data = nil
		return cb(r)
	}
}
