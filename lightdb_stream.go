package golioth

import (
	"context"

	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"

	"github.com/golioth/golioth-go/coap"
	"github.com/golioth/golioth-go/engine"
)

// lightDBStreamPrefix is prepended to every LightDB Stream path.
const lightDBStreamPrefix = ".s"

func lightDBStreamPath(path string) coap.PathVector {
	return coap.NewPathVector(lightDBStreamPrefix, path)
}

// LightDBStreamPushAsync POSTs a single time-series sample under
// .s/<path>, always with the response body suppressed: Stream's one
// operation is fire-and-forget, the same shape the C SDK's stream.c uses.
func (c *Client) LightDBStreamPushAsync(path string, format coap.ContentFormat, data []byte, cb engine.ResponseFunc) error {
	_, err := c.asyncSubmit(udpmessage.Confirmable, codes.POST, lightDBStreamPath(path),
		coap.BuildOptions{HasContent: true, ContentFormat: format}, data, dropBody(cb))
	return err
}

// LightDBStreamPush blocks until the POST under .s/<path> completes.
func (c *Client) LightDBStreamPush(ctx context.Context, path string, format coap.ContentFormat, data []byte) error {
	_, err := c.syncCall(ctx, udpmessage.Confirmable, codes.POST, lightDBStreamPath(path),
		coap.BuildOptions{HasContent: true, ContentFormat: format}, data)
	return err
}
