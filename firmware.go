package golioth

import (
	"context"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"

	"github.com/golioth/golioth-go/coap"
	"github.com/golioth/golioth-go/engine"
)

// FirmwareState is the OTA lifecycle state reported via ReportState
// (spec.md §4.7 "Firmware desired-image observer").
type FirmwareState int

const (
	FirmwareIdle FirmwareState = iota
	FirmwareDownloading
	FirmwareDownloaded
	FirmwareUpdating
)

// FirmwareResult is the outcome reported alongside a FirmwareState.
type FirmwareResult int

const (
	FirmwareResultInitial FirmwareResult = iota
	FirmwareResultSuccess
	FirmwareResultFailed
	FirmwareResultFetchFailed
	FirmwareResultManifestParsingFailed
	FirmwareResultWrongSize
	FirmwareResultChecksumMismatch
)

// Component is one entry in a firmware manifest (spec.md §4.7: "extract
// the first component's version and uri").
type Component struct {
	Version string `cbor:"version"`
	URI     string `cbor:"uri"`
}

// Manifest is the desired-image notification body: a sequence number
// plus the component list the C SDK's fw.c also tracks.
type Manifest struct {
	Sequence   int64       `cbor:"seq"`
	Components []Component `cbor:"components"`
}

// FirstComponent returns the manifest's first component, if any - the
// only one this client's firmware observer extracts.
func (m Manifest) FirstComponent() (Component, bool) {
	if len(m.Components) == 0 {
		return Component{}, false
	}
	return m.Components[0], true
}

// ManifestNeedsUpdate reports whether current differs from desired, the
// same comparison golioth_fw_download's version check makes before
// starting a download.
func ManifestNeedsUpdate(current, desired Component) bool {
	return current.Version != desired.Version
}

// FirmwareManifestFunc is invoked with each desired-image manifest
// notification.
type FirmwareManifestFunc func(Manifest)

// StartFirmwareObserver registers the Observe on .u/desired (spec.md
// §4.7).
func (c *Client) StartFirmwareObserver(onManifest FirmwareManifestFunc) (coapToken, error) {
	return c.asyncSubmit(udpmessage.Confirmable, codes.GET, coap.NewPathVector(".u", "desired"),
		coap.BuildOptions{Observe: true, HasAccept: true, Accept: coap.FormatCBOR}, nil,
		func(r engine.Response) error {
			if r.Err != nil {
				return nil
			}
			var m Manifest
			if err := cbor.Unmarshal(r.Data, &m); err != nil {
				c.log.WithError(err).Warn("firmware: malformed manifest notification")
				return nil
			}
			if onManifest != nil {
				onManifest(m)
			}
			return nil
		})
}

type firmwareReport struct {
	State   int    `cbor:"s"`
	Result  int    `cbor:"r"`
	Current string `cbor:"v,omitempty"`
	Target  string `cbor:"t,omitempty"`
}

// ReportState POSTs a lifecycle report to .u/c/<package> (spec.md §4.7
// "report_state").
func (c *Client) ReportState(ctx context.Context, pkg string, state FirmwareState, result FirmwareResult, current, target string) error {
	payload, err := cbor.Marshal(firmwareReport{
		State:   int(state),
		Result:  int(result),
		Current: current,
		Target:  target,
	})
	if err != nil {
		return err
	}
	_, err = c.syncCall(ctx, udpmessage.Confirmable, codes.POST, coap.NewPathVector(".u", "c", pkg),
		coap.BuildOptions{HasContent: true, ContentFormat: coap.FormatCBOR}, payload)
	return err
}
