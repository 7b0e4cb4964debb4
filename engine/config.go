package engine

import (
	"fmt"
	"time"
)

// Config holds the recognized client configuration options (spec §6).
type Config struct {
	ServerHost string
	ServerPort int // default 5684

	RxBufferSize int

	AckTimeout           time.Duration
	AckRandomFactor      float64
	RandomizeAckTimeout  bool
	PingInterval         time.Duration
	ReceiveTimeout       time.Duration
	RPCMaxMethods        int
	SettingsMaxRespLen   int
	CredentialsTagList   []uint16
	HostnameVerification bool
}

// DefaultConfig returns a Config with every documented default filled in
// (spec §6, §4.3, §4.6).
func DefaultConfig() Config {
	return Config{
		ServerPort:           5684,
		RxBufferSize:         1024,
		AckTimeout:           DefaultAckTimeout,
		AckRandomFactor:      DefaultAckRandomFactor,
		RandomizeAckTimeout:  true,
		PingInterval:         9 * time.Second,
		ReceiveTimeout:       30 * time.Second,
		RPCMaxMethods:        8,
		SettingsMaxRespLen:   512,
		HostnameVerification: true,
	}
}

// Validate fills in zero-valued numeric fields with their defaults and
// enforces the PingInterval < ReceiveTimeout constraint (spec §4.6). The
// bool fields (RandomizeAckTimeout, HostnameVerification) are left as
// given, so a Config not built from DefaultConfig keeps them false.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.ServerPort == 0 {
		c.ServerPort = d.ServerPort
	}
	if c.RxBufferSize == 0 {
		c.RxBufferSize = d.RxBufferSize
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = d.AckTimeout
	}
	if c.AckRandomFactor == 0 {
		c.AckRandomFactor = d.AckRandomFactor
	}
	if c.PingInterval == 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = d.ReceiveTimeout
	}
	if c.RPCMaxMethods == 0 {
		c.RPCMaxMethods = d.RPCMaxMethods
	}
	if c.SettingsMaxRespLen == 0 {
		c.SettingsMaxRespLen = d.SettingsMaxRespLen
	}
	if c.ServerHost == "" {
		return fmt.Errorf("golioth: ServerHost is required")
	}
	if c.PingInterval >= c.ReceiveTimeout {
		return fmt.Errorf("golioth: PingInterval (%s) must be less than ReceiveTimeout (%s)", c.PingInterval, c.ReceiveTimeout)
	}
	return nil
}
