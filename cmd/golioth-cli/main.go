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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/golioth/golioth-go"
	"github.com/golioth/golioth-go/coap"
	"github.com/golioth/golioth-go/engine"
	"github.com/golioth/golioth-go/transport"
)

var (
	flagHost     string
	flagPort     int
	flagInsecure bool
	flagVerbose  bool
	flagPSKID    string
	flagPSKKey   string
	flagGet      string
	flagSet      string
	flagData     string
)

func init() {
	flag.StringVar(&flagHost, "host", "", "Golioth CoAP server host")
	flag.IntVar(&flagPort, "port", 5684, "Golioth CoAP server port")
	flag.BoolVar(&flagInsecure, "insecure", false, "Skip DTLS certificate verification")
	flag.BoolVar(&flagInsecure, "k", false, "Skip DTLS certificate verification (shorthand of --insecure)")
	flag.BoolVar(&flagVerbose, "verbose", false, "Verbose logging")
	flag.BoolVar(&flagVerbose, "v", false, "Verbose logging (shorthand of --verbose)")
	flag.StringVar(&flagPSKID, "psk-id", "", "PSK identity (device credential)")
	flag.StringVar(&flagPSKKey, "psk-key", "", "PSK key, used as the raw bytes of the string; not hex-decoded (device credential)")
	flag.StringVar(&flagGet, "get", "", "LightDB State path to GET, e.g. sensors/temp")
	flag.StringVar(&flagSet, "set", "", "LightDB State path to POST --data to")
	flag.StringVar(&flagData, "data", "", "CBOR/JSON-as-text payload for --set")
}

func main() {
	flag.Parse()
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of golioth-cli:\n")
		flag.PrintDefaults()
		fmt.Println("Example: golioth-cli -host coap.golioth.io -psk-id my-device -psk-key deadbeef -get sensors/temp")
		fmt.Println("Also supports the environment variable SSLKEYLOGFILE= to write session secrets for decrypting DTLS traffic in Wireshark")
	}

	if flagHost == "" {
		flag.Usage()
		os.Exit(1)
	}
	if flagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var keyLogWriter io.Writer
	if keylogfile := os.Getenv("SSLKEYLOGFILE"); keylogfile != "" {
		f, err := os.OpenFile(keylogfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			logrus.WithError(err).Fatal("failed to open SSLKEYLOGFILE")
		}
		keyLogWriter = f
	}

	dialer := transport.NewDialer(transport.Config{
		PSKIdentity:        []byte(flagPSKID),
		PSKKey:             []byte(flagPSKKey),
		InsecureSkipVerify: flagInsecure,
		KeyLogWriter:       keyLogWriter,
	})

	client, err := golioth.NewClient(golioth.Config{
		ServerHost: flagHost,
		ServerPort: flagPort,
		Logger:     logrus.StandardLogger(),
	}, dialer)
	if err != nil {
		logrus.WithError(err).Fatal("failed to construct client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := client.Run(ctx); err != nil && err != context.Canceled {
			logrus.WithError(err).Warn("session loop exited")
		}
	}()

	waitConnected(client)

	switch {
	case flagGet != "":
		data, err := client.LightDBStateGet(ctx, flagGet, coap.FormatCBOR)
		if err != nil {
			logrus.WithError(err).Fatal("get failed")
		}
		fmt.Printf("%s\n", strings.TrimSpace(string(data)))
	case flagSet != "":
		if err := client.LightDBStateSet(ctx, flagSet, coap.FormatCBOR, []byte(flagData)); err != nil {
			logrus.WithError(err).Fatal("set failed")
		}
	default:
		if err := client.Hello(ctx); err != nil {
			logrus.WithError(err).Fatal("hello failed")
		}
		fmt.Println("hello ok")
	}

	client.Stop()
	<-runDone
}

func waitConnected(client *golioth.Client) {
	for i := 0; i < 100; i++ {
		if client.State() == engine.Connected {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
