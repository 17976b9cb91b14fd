package mqtt

import (
	"errors"
	"net/url"
	"time"
)

// ClientConfig holds the configuration for creating a new MQTT Client.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout for the initial connection. Default is 5s.
	ConnectTimeout time.Duration

	// CleanStart indicates whether to start a clean session.
	CleanStart bool

	// InsecureSkipVerify disables TLS certificate verification for brokers
	// running on self-signed certs.
	InsecureSkipVerify bool

	// Will message published by the broker when the connection dies. Used for
	// the availability topic so Home Assistant marks the sensors unavailable.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool

	// OnConnectionUp runs on every (re)connect. The will leaves retained
	// offline on the availability topic after a drop, so whatever undoes that
	// has to run here, not just once at startup.
	OnConnectionUp func()
}

// setDefaultConfig applies safe default values to the configuration.
func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}

	if cfg.ClientID == "" {
		cfg.ClientID = "itp-monitor"
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	if _, err := url.Parse(c.BrokerURL); err != nil {
		return err
	}
	return nil
}
