package golioth

import (
	"testing"

	"github.com/golioth/golioth-go/engine"
)

func TestDropBodyClearsDataBeforeInvokingCallback(t *testing.T) {
	var got engine.Response
	wrapped := dropBody(func(r engine.Response) error { got = r; return nil })

	err := wrapped(engine.Response{Data: []byte("body"), Off: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Data != nil {
		t.Fatalf("got.Data = %q, want nil", got.Data)
	}
	if got.Off != 3 {
		t.Fatalf("got.Off = %d, want 3 (only Data is cleared)", got.Off)
	}
}

func TestDropBodyWithNilCallbackIsNoop(t *testing.T) {
	wrapped := dropBody(nil)
	if err := wrapped(engine.Response{Data: []byte("x")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLightDBStatePathPrependsPrefix(t *testing.T) {
	pv := lightDBStatePath("sensors/temp")
	if pv.Join() != ".d/sensors/temp" {
		t.Fatalf("got %q, want \".d/sensors/temp\"", pv.Join())
	}
}
