package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/itp-watch/itp-monitor-v2/internal/models"
)

const (
	DefaultBaseTopic       = "itp-monitor"
	DefaultDiscoveryPrefix = "homeassistant"

	payloadOnline  = "online"
	payloadOffline = "offline"
)

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a VIN into a topic-safe lowercase identifier
func Slugify(vin string) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(vin)), "_")
	return strings.Trim(slug, "_")
}

// discoveryConfig is the Home Assistant MQTT discovery payload for one sensor
type discoveryConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	ValueTemplate     string     `json:"value_template"`
	AvailabilityTopic string     `json:"availability_topic"`
	Icon              string     `json:"icon,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	Device            deviceInfo `json:"device"`
}

type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
}

// sensorSpec describes one of the four sensors exposed per vehicle
type sensorSpec struct {
	key         string
	name        string
	template    string
	icon        string
	deviceClass string
	unit        string
	stateClass  string
}

var sensorSpecs = []sensorSpec{
	{key: "status", name: "ITP Status", template: "{{ value_json.status }}", icon: "mdi:car"},
	{key: "expiration_date", name: "ITP Expiration Date", template: "{{ value_json.expiration_date }}", icon: "mdi:calendar-star", deviceClass: "date"},
	{key: "last_checked", name: "ITP Last Checked", template: "{{ value_json.last_checked }}", icon: "mdi:clock-outline", deviceClass: "timestamp"},
	{key: "days_left", name: "ITP Days Left", template: "{{ value_json.days_left }}", icon: "mdi:calendar-clock", unit: "days", stateClass: "measurement"},
}

// statePayload is the retained per-vehicle state document all four sensors
// read through their value templates
type statePayload struct {
	Vin            string `json:"vin"`
	Status         string `json:"status"`
	ExpirationDate string `json:"expiration_date"`
	LastChecked    string `json:"last_checked"`
	DaysLeft       *int   `json:"days_left"`
}

// StatePublisher exposes check results as Home Assistant sensors over MQTT
// discovery. All payloads are retained so sensors survive HA restarts, and
// availability runs through a broker will.
type StatePublisher struct {
	client          Client
	baseTopic       string
	discoveryPrefix string
}

func NewStatePublisher(client Client, baseTopic string, discoveryPrefix string) *StatePublisher {
	if baseTopic == "" {
		baseTopic = DefaultBaseTopic
	}
	if discoveryPrefix == "" {
		discoveryPrefix = DefaultDiscoveryPrefix
	}

	return &StatePublisher{
		client:          client,
		baseTopic:       baseTopic,
		discoveryPrefix: discoveryPrefix,
	}
}

// AvailabilityTopic is also what the broker will is configured with
func AvailabilityTopic(baseTopic string) string {
	if baseTopic == "" {
		baseTopic = DefaultBaseTopic
	}
	return baseTopic + "/status"
}

func (p *StatePublisher) stateTopic(vin string) string {
	return fmt.Sprintf("%s/%s/state", p.baseTopic, Slugify(vin))
}

func (p *StatePublisher) configTopic(vin string, sensorKey string) string {
	return fmt.Sprintf("%s/sensor/itp_%s_%s/config", p.discoveryPrefix, Slugify(vin), sensorKey)
}

func (p *StatePublisher) PublishAvailability(ctx context.Context, online bool) error {
	payload := payloadOffline
	if online {
		payload = payloadOnline
	}
	return p.client.Publish(ctx, AvailabilityTopic(p.baseTopic), 1, true, []byte(payload))
}

// PublishVehicleDiscovery announces the four sensors of a vehicle to Home
// Assistant. Safe to call repeatedly; configs are retained.
func (p *StatePublisher) PublishVehicleDiscovery(ctx context.Context, vin string, name *string) error {
	slug := Slugify(vin)
	deviceName := fmt.Sprintf("ITP %s", strings.ToUpper(vin))
	if name != nil && *name != "" {
		deviceName = *name
	}

	device := deviceInfo{
		Identifiers:  []string{"itp_" + slug},
		Name:         deviceName,
		Manufacturer: "ITP Monitor",
	}

	for _, spec := range sensorSpecs {
		config := discoveryConfig{
			Name:              fmt.Sprintf("%s %s", spec.name, strings.ToUpper(vin)),
			UniqueID:          fmt.Sprintf("itp_%s_%s", slug, spec.key),
			StateTopic:        p.stateTopic(vin),
			ValueTemplate:     spec.template,
			AvailabilityTopic: AvailabilityTopic(p.baseTopic),
			Icon:              spec.icon,
			DeviceClass:       spec.deviceClass,
			UnitOfMeasurement: spec.unit,
			StateClass:        spec.stateClass,
			Device:            device,
		}

		payload, err := json.Marshal(config)
		if err != nil {
			return err
		}

		if err := p.client.Publish(ctx, p.configTopic(vin, spec.key), 1, true, payload); err != nil {
			return fmt.Errorf("could not publish discovery config for %s/%s: %w", vin, spec.key, err)
		}
	}

	return nil
}

// ClearVehicle removes the retained discovery configs and state of a deleted
// vehicle by publishing empty retained payloads.
func (p *StatePublisher) ClearVehicle(ctx context.Context, vin string) error {
	for _, spec := range sensorSpecs {
		if err := p.client.Publish(ctx, p.configTopic(vin, spec.key), 1, true, nil); err != nil {
			return err
		}
	}
	return p.client.Publish(ctx, p.stateTopic(vin), 1, true, nil)
}

// PublishCheck pushes one check result onto the vehicle's retained state topic
func (p *StatePublisher) PublishCheck(ctx context.Context, check *models.InspectionCheckModel) error {
	state := statePayload{
		Vin:            check.Vin,
		Status:         check.Status,
		ExpirationDate: check.ExpirationDate,
		LastChecked:    check.CheckedAt.Format(time.RFC3339),
	}

	if days, ok := models.DaysUntil(check.ExpirationDate, time.Now()); ok {
		state.DaysLeft = &days
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return p.client.Publish(ctx, p.stateTopic(check.Vin), 1, true, payload)
}
