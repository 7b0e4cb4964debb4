// Copyright 2021 The Matrix.org Foundation C.I.C.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coap builds and parses the CoAP messages exchanged with the
// backend: path-vector encoding, content-format constants, and the small
// set of option helpers the engine needs (Block2, Observe).
package coap

import (
	"strings"

	"github.com/plgd-dev/go-coap/v2/message"
)

// ContentFormat is a CoAP Content-Format/Accept option value.
type ContentFormat = message.MediaType

// Content-Format codes, the standard IANA values used by the service
// adapters (spec §6).
const (
	FormatText   ContentFormat = message.TextPlain // 0
	FormatOctets ContentFormat = message.AppOctets // 42
	FormatJSON   ContentFormat = message.AppJSON   // 50
	FormatCBOR   ContentFormat = message.AppCBOR   // 60
)

// PathVector is a logical sequence of CoAP path segments, e.g. {".d", "counter"}.
type PathVector []string

// NewPathVector splits each of the given strings on "/" the way a single
// Uri-Path option string would be, discarding empty pieces and a leading
// slash, and flattens the result into one vector. Each non-empty piece
// becomes its own Uri-Path option when encoded.
func NewPathVector(segments ...string) PathVector {
	var out PathVector
	for _, s := range segments {
		s = strings.TrimPrefix(s, "/")
		for _, piece := range strings.Split(s, "/") {
			if piece == "" {
				continue
			}
			out = append(out, piece)
		}
	}
	return out
}

// Join renders the vector back into a single "/"-separated string, mainly
// for logging.
func (pv PathVector) Join() string {
	return strings.Join(pv, "/")
}

// EncodedLenBound returns a safe upper bound, in bytes, on the space the
// vector will occupy once encoded as a run of Uri-Path options. The CoAP
// option format spends 1 extra byte of delta+length whenever an option's
// delta or length reaches 13, and a second extra byte once either reaches
// 269 - Uri-Path segments are capped well under that, so a single extra
// byte per segment plus its own length covers every case:
//
//	bound = Σ (len_i + floor(len_i/13) + 1)
//
// This is the bound spec §4.1 requires the codec to expose.
func (pv PathVector) EncodedLenBound() int {
	total := 0
	for _, seg := range pv {
		total += len(seg) + len(seg)/13 + 1
	}
	return total
}

// AppendUriPath appends one Uri-Path option per vector segment to opts,
// growing buf as needed the way message.Options' Set* helpers expect
// (retry once on message.ErrTooSmall after growing the buffer) and
// advancing past each value written, since every option value aliases
// buf. The returned buf is the unused remainder.
func (pv PathVector) AppendUriPath(opts message.Options, buf []byte) (message.Options, []byte, error) {
	for _, seg := range pv {
		var n int
		var err error
		opts, n, err = opts.AddString(buf, message.URIPath, seg)
		if err == message.ErrTooSmall {
			buf = append(buf, make([]byte, n)...)
			opts, n, err = opts.AddString(buf, message.URIPath, seg)
		}
		if err != nil {
			return opts, buf, err
		}
		buf = buf[n:]
	}
	return opts, buf, nil
}
