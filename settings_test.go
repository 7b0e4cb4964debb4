package golioth

import (
	"testing"

	cbor "github.com/fxamacker/cbor/v2"
)

func mustMarshal(t *testing.T, v interface{}) cbor.RawMessage {
	t.Helper()
	b, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("cbor.Marshal(%v): %v", v, err)
	}
	return cbor.RawMessage(b)
}

func TestDecodeSettingsValueString(t *testing.T) {
	v, ok := decodeSettingsValue(mustMarshal(t, "hello"))
	if !ok || v != "hello" {
		t.Fatalf("got (%v, %v), want (\"hello\", true)", v, ok)
	}
}

func TestDecodeSettingsValueNegativeInt(t *testing.T) {
	v, ok := decodeSettingsValue(mustMarshal(t, int64(-42)))
	if !ok || v != int64(-42) {
		t.Fatalf("got (%v, %v), want (-42, true)", v, ok)
	}
}

func TestDecodeSettingsValuePositiveIntDecodesAsInt64(t *testing.T) {
	v, ok := decodeSettingsValue(mustMarshal(t, uint64(7)))
	if !ok {
		t.Fatal("expected positive integer to decode")
	}
	if _, isInt64 := v.(int64); !isInt64 {
		t.Fatalf("got %T, want int64", v)
	}
}

func TestDecodeSettingsValueFloat(t *testing.T) {
	v, ok := decodeSettingsValue(mustMarshal(t, 3.5))
	if !ok || v != 3.5 {
		t.Fatalf("got (%v, %v), want (3.5, true)", v, ok)
	}
}

func TestDecodeSettingsValueBool(t *testing.T) {
	v, ok := decodeSettingsValue(mustMarshal(t, true))
	if !ok || v != true {
		t.Fatalf("got (%v, %v), want (true, true)", v, ok)
	}
}

func TestApplyOneSettingRejectsOverlongKey(t *testing.T) {
	c := &Client{settings: newSettingsRegistry()}
	longKey := make([]byte, maxSettingsKeyLen+1)
	for i := range longKey {
		longKey[i] = 'a'
	}
	code := c.applyOneSetting(nil, string(longKey), mustMarshal(t, "x"))
	if code != SettingsKeyNotValid {
		t.Fatalf("got %v, want SettingsKeyNotValid", code)
	}
}

func TestApplyOneSettingWithNoHandlerReturnsNotRecognized(t *testing.T) {
	c := &Client{settings: newSettingsRegistry()}
	code := c.applyOneSetting(nil, "key", mustMarshal(t, "x"))
	if code != SettingsKeyNotRecognized {
		t.Fatalf("got %v, want SettingsKeyNotRecognized", code)
	}
}

func TestApplyOneSettingInvokesHandlerWithDecodedValue(t *testing.T) {
	c := &Client{settings: newSettingsRegistry()}
	var gotKey string
	var gotVal interface{}
	handler := func(key string, value interface{}) SettingsErrorCode {
		gotKey, gotVal = key, value
		return SettingsSuccess
	}
	code := c.applyOneSetting(handler, "loop_delay_s", mustMarshal(t, int64(10)))
	if code != SettingsSuccess {
		t.Fatalf("got %v, want SettingsSuccess", code)
	}
	if gotKey != "loop_delay_s" || gotVal != int64(10) {
		t.Fatalf("handler saw (%q, %v), want (\"loop_delay_s\", 10)", gotKey, gotVal)
	}
}

func TestSettingsRegistryGetSet(t *testing.T) {
	reg := newSettingsRegistry()
	if reg.get() != nil {
		t.Fatal("expected no handler registered initially")
	}
	h := func(string, interface{}) SettingsErrorCode { return SettingsSuccess }
	reg.set(h)
	if reg.get() == nil {
		t.Fatal("expected handler to be retrievable after set")
	}
}
