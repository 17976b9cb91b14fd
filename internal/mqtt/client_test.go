package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &ClientConfig{BrokerURL: "mqtt://127.0.0.1:1883"}
	setDefaultConfig(cfg)

	assert.Equal(t, "itp-monitor", cfg.ClientID)
	assert.Equal(t, uint16(60), cfg.KeepAlive)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}

func TestConfigValidate(t *testing.T) {
	cfg := &ClientConfig{}
	assert.Error(t, cfg.Validate())

	cfg.BrokerURL = "mqtt://127.0.0.1:1883"
	assert.NoError(t, cfg.Validate())
}

// Reconnects must re-run the hook so retained availability gets restored
// after the will published offline.
func TestConnectionUpHookRunsOnEveryConnect(t *testing.T) {
	fired := make(chan struct{}, 2)
	cfg := &ClientConfig{
		BrokerURL:      "mqtt://127.0.0.1:1883",
		OnConnectionUp: func() { fired <- struct{}{} },
	}
	setDefaultConfig(cfg)
	client := &pahoClient{cfg: cfg}

	client.onConnectionUp(nil, nil)
	client.onConnectionUp(nil, nil)

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("connection-up hook did not run")
		}
	}
}

func TestConnectionUpWithoutHook(t *testing.T) {
	client := &pahoClient{cfg: &ClientConfig{BrokerURL: "mqtt://127.0.0.1:1883"}}

	// must not panic when no hook is configured
	client.onConnectionUp(nil, nil)
}
