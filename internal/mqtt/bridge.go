//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"stage-command-center/internal/show"
)

// ErrNotConnected is returned by SendCommand while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// Config holds MQTT dispatcher configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
	// Discovery publishes Home Assistant discovery configs when true and
	// clears them when false.
	Discovery bool
}

// Dispatcher carries equipment commands over MQTT. Commands go out on
// <prefix>/equipment/<id>/set and confirmations come back on
// <prefix>/equipment/<id>/state.
type Dispatcher struct {
	client    pahomqtt.Client
	prefix    string
	discovery bool
	equipment func() []show.EquipmentItem
	logger    *slog.Logger
	unsub     func()

	mu       sync.RWMutex
	handlers map[uint64]func(show.StatusUpdate)
	nextID   uint64
}

// NewDispatcher creates and connects an MQTT dispatcher. equipment supplies
// the current rig for discovery and availability publishing.
func NewDispatcher(cfg Config, equipment func() []show.EquipmentItem, logger *slog.Logger) (*Dispatcher, error) {
	d := newDispatcher(cfg, equipment, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "stage-command-center"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(bridgeStateTopic(cfg.TopicPrefix), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			d.logger.Info("MQTT connected")
			d.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			d.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	d.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return d, nil
}

func newDispatcher(cfg Config, equipment func() []show.EquipmentItem, logger *slog.Logger) *Dispatcher {
	if equipment == nil {
		equipment = func() []show.EquipmentItem { return nil }
	}
	return &Dispatcher{
		prefix:    cfg.TopicPrefix,
		discovery: cfg.Discovery,
		equipment: equipment,
		logger:    logger.With("component", "mqtt"),
		handlers:  make(map[uint64]func(show.StatusUpdate)),
	}
}

func (d *Dispatcher) onConnect() {
	d.publish(bridgeStateTopic(d.prefix), []byte("online"), true)
	d.publishAllDiscovery()
	d.publishAllAvailability()
	d.subscribeStatus()
}

// Watch republishes per-device availability whenever the show reports a
// status change.
func (d *Dispatcher) Watch(events *show.EventBus) {
	offline := events.On(show.EventEquipmentOffline, d.handleAvailabilityEvent)
	online := events.On(show.EventEquipmentOnline, d.handleAvailabilityEvent)
	d.unsub = func() {
		offline()
		online()
	}
	d.logger.Info("MQTT dispatcher started", "prefix", d.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (d *Dispatcher) Stop() {
	if d.unsub != nil {
		d.unsub()
	}
	d.publish(bridgeStateTopic(d.prefix), []byte("offline"), true)
	d.client.Disconnect(1000)
	d.logger.Info("MQTT dispatcher stopped")
}

// SendCommand publishes {"state":bool} to the item's set topic.
func (d *Dispatcher) SendCommand(cmd show.Command) error {
	if !d.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	d.publish(commandTopic(d.prefix, cmd.ID), encodeCommand(cmd), false)
	return nil
}

// OnStatusUpdate registers fn for inbound confirmations.
func (d *Dispatcher) OnStatusUpdate(fn func(show.StatusUpdate)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.handlers[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.handlers, id)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) subscribeStatus() {
	topic := d.prefix + "/equipment/+/state"
	token := d.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		d.handleStatus(msg.Topic(), msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			d.logger.Warn("MQTT subscribe timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			d.logger.Warn("MQTT subscribe error", "topic", topic, "err", err)
		}
	}()
}

func (d *Dispatcher) handleStatus(topic string, payload []byte) {
	id, ok := parseStateTopic(d.prefix, topic)
	if !ok {
		return
	}
	u, err := decodeStatus(id, payload)
	if err != nil {
		d.logger.Warn("invalid status payload", "id", id, "err", err)
		return
	}

	d.mu.RLock()
	hs := make([]func(show.StatusUpdate), 0, len(d.handlers))
	for _, h := range d.handlers {
		hs = append(hs, h)
	}
	d.mu.RUnlock()
	for _, h := range hs {
		h(u)
	}
}

func (d *Dispatcher) handleAvailabilityEvent(event show.Event) {
	item, ok := event.Data.(show.EquipmentItem)
	if !ok {
		return
	}
	d.publishAvailability(item)
}

func (d *Dispatcher) publishAvailability(item show.EquipmentItem) {
	d.publish(availabilityTopic(d.prefix, item.ID), []byte(availabilityPayload(item.Status)), true)
}

func (d *Dispatcher) publishAllAvailability() {
	for _, item := range d.equipment() {
		d.publishAvailability(item)
	}
}

func (d *Dispatcher) publishAllDiscovery() {
	for _, item := range d.equipment() {
		msgs := buildRemoveDiscovery(item)
		if d.discovery {
			msgs = buildDiscovery(item, d.prefix)
		}
		for _, msg := range msgs {
			d.publish(msg.Topic, msg.Payload, true)
		}
	}
	if d.discovery {
		d.logger.Info("published HA discovery")
	}
}

func (d *Dispatcher) publish(topic string, payload []byte, retained bool) {
	token := d.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			d.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			d.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func bridgeStateTopic(prefix string) string {
	return prefix + "/bridge/state"
}

func commandTopic(prefix, id string) string {
	return prefix + "/equipment/" + id + "/set"
}

func stateTopic(prefix, id string) string {
	return prefix + "/equipment/" + id + "/state"
}

func availabilityTopic(prefix, id string) string {
	return prefix + "/equipment/" + id + "/availability"
}

// parseStateTopic extracts the equipment id from <prefix>/equipment/<id>/state.
func parseStateTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/equipment/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/state")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func availabilityPayload(s show.Status) string {
	if s == show.StatusOffline {
		return "offline"
	}
	return "online"
}

func encodeCommand(cmd show.Command) []byte {
	return mustJSON(struct {
		State bool `json:"state"`
	}{cmd.State})
}

// decodeStatus accepts {"on":bool} and, for devices that speak the HA style,
// {"state":"ON"|"OFF"}.
func decodeStatus(id string, payload []byte) (show.StatusUpdate, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return show.StatusUpdate{}, err
	}
	if on, ok := raw["on"].(bool); ok {
		return show.StatusUpdate{ID: id, On: on}, nil
	}
	if state, ok := raw["state"].(string); ok {
		switch strings.ToUpper(state) {
		case "ON":
			return show.StatusUpdate{ID: id, On: true}, nil
		case "OFF":
			return show.StatusUpdate{ID: id, On: false}, nil
		}
	}
	return show.StatusUpdate{}, fmt.Errorf("no on/state field in %s", payload)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
