package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/itp-watch/itp-monitor-v2/internal/models"
	"github.com/stretchr/testify/assert"
)

type publishedMessage struct {
	topic   string
	qos     int
	retain  bool
	payload []byte
}

// fakeClient records everything published instead of talking to a broker
type fakeClient struct {
	published []publishedMessage
}

func (f *fakeClient) Start(ctx context.Context) error { return nil }
func (f *fakeClient) Disconnect(ctx context.Context)  {}
func (f *fakeClient) AwaitConnection(ctx context.Context) error {
	return nil
}

func (f *fakeClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	f.published = append(f.published, publishedMessage{topic: topic, qos: qos, retain: retain, payload: payload})
	return nil
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "wvwzzz1jzxw000001", Slugify("WVWZZZ1JZXW000001"))
	assert.Equal(t, "abc_def", Slugify(" ABC-DEF "))
	assert.Equal(t, "a1_b2", Slugify("A1 . B2"))
}

func TestAvailabilityTopic(t *testing.T) {
	assert.Equal(t, "itp-monitor/status", AvailabilityTopic(""))
	assert.Equal(t, "custom/status", AvailabilityTopic("custom"))
}

func TestPublishVehicleDiscovery(t *testing.T) {
	client := &fakeClient{}
	pub := NewStatePublisher(client, "", "")

	err := pub.PublishVehicleDiscovery(context.Background(), "WVWZZZ1JZXW000001", nil)
	assert.NoError(t, err)

	// one retained config per sensor
	assert.Len(t, client.published, 4)

	var config map[string]interface{}
	assert.NoError(t, json.Unmarshal(client.published[0].payload, &config))

	assert.Equal(t, "homeassistant/sensor/itp_wvwzzz1jzxw000001_status/config", client.published[0].topic)
	assert.True(t, client.published[0].retain)
	assert.Equal(t, "itp-monitor/wvwzzz1jzxw000001/state", config["state_topic"])
	assert.Equal(t, "itp-monitor/status", config["availability_topic"])
	assert.Equal(t, "itp_wvwzzz1jzxw000001_status", config["unique_id"])
	assert.Equal(t, "mdi:car", config["icon"])

	topics := make([]string, 0, len(client.published))
	for _, msg := range client.published {
		topics = append(topics, msg.topic)
	}
	assert.Contains(t, topics, "homeassistant/sensor/itp_wvwzzz1jzxw000001_expiration_date/config")
	assert.Contains(t, topics, "homeassistant/sensor/itp_wvwzzz1jzxw000001_last_checked/config")
	assert.Contains(t, topics, "homeassistant/sensor/itp_wvwzzz1jzxw000001_days_left/config")
}

func TestPublishVehicleDiscoveryCustomName(t *testing.T) {
	client := &fakeClient{}
	pub := NewStatePublisher(client, "", "")

	name := "Family Car"
	err := pub.PublishVehicleDiscovery(context.Background(), "VIN1234567", &name)
	assert.NoError(t, err)

	var config map[string]interface{}
	assert.NoError(t, json.Unmarshal(client.published[0].payload, &config))
	device := config["device"].(map[string]interface{})
	assert.Equal(t, "Family Car", device["name"])
}

func TestPublishCheck(t *testing.T) {
	client := &fakeClient{}
	pub := NewStatePublisher(client, "", "")

	checkedAt := time.Now()
	check := &models.InspectionCheckModel{
		Vin:            "WVWZZZ1JZXW000001",
		Status:         models.StatusValid,
		ExpirationDate: checkedAt.AddDate(0, 0, 30).Format("2006-01-02"),
		CheckedAt:      checkedAt,
		Attempts:       1,
	}

	assert.NoError(t, pub.PublishCheck(context.Background(), check))
	assert.Len(t, client.published, 1)
	assert.Equal(t, "itp-monitor/wvwzzz1jzxw000001/state", client.published[0].topic)
	assert.True(t, client.published[0].retain)

	var state map[string]interface{}
	assert.NoError(t, json.Unmarshal(client.published[0].payload, &state))
	assert.Equal(t, "Valid", state["status"])
	assert.Equal(t, check.ExpirationDate, state["expiration_date"])
	assert.NotNil(t, state["days_left"])
}

func TestPublishCheckUnknownExpiration(t *testing.T) {
	client := &fakeClient{}
	pub := NewStatePublisher(client, "", "")

	check := &models.InspectionCheckModel{
		Vin:            "VIN1234567",
		Status:         models.StatusNotFound,
		ExpirationDate: models.UnknownExpiration,
		CheckedAt:      time.Now(),
	}

	assert.NoError(t, pub.PublishCheck(context.Background(), check))

	var state map[string]interface{}
	assert.NoError(t, json.Unmarshal(client.published[0].payload, &state))
	assert.Nil(t, state["days_left"])
}

func TestClearVehicle(t *testing.T) {
	client := &fakeClient{}
	pub := NewStatePublisher(client, "", "")

	assert.NoError(t, pub.ClearVehicle(context.Background(), "VIN1234567"))

	// 4 config tombstones plus the state tombstone
	assert.Len(t, client.published, 5)
	for _, msg := range client.published {
		assert.True(t, msg.retain)
		assert.Empty(t, msg.payload)
	}
}
