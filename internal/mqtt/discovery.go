//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"stage-command-center/internal/show"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/switch/stage_aud-01/switch/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

type haAvailability struct {
	Topic string `json:"topic"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name             string           `json:"name"`
	UniqueID         string           `json:"unique_id"`
	StateTopic       string           `json:"state_topic"`
	CommandTopic     string           `json:"command_topic,omitempty"`
	Availability     []haAvailability `json:"availability"`
	AvailabilityMode string           `json:"availability_mode,omitempty"`
	ValueTemplate    string           `json:"value_template,omitempty"`
	DeviceClass      string           `json:"device_class,omitempty"`
	PayloadOn        string           `json:"payload_on,omitempty"`
	PayloadOff       string           `json:"payload_off,omitempty"`
	StateOn          string           `json:"state_on,omitempty"`
	StateOff         string           `json:"state_off,omitempty"`
	Icon             string           `json:"icon,omitempty"`
	Device           haDevice         `json:"device"`
}

// deviceDisplayName returns a display name for the item.
func deviceDisplayName(item show.EquipmentItem) string {
	if item.Name != "" {
		return item.Name
	}
	if item.Brand != "" && item.Model != "" {
		return item.Brand + " " + item.Model
	}
	return item.ID
}

// deviceIdentifier returns the unique identifier for HA device registry.
func deviceIdentifier(item show.EquipmentItem) string {
	return "stage_" + topicSafe(item.ID)
}

// topicSafe lowercases s and replaces anything that is not safe in a topic
// level with '_'.
func topicSafe(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, s)
}

func equipmentIcon(t show.EquipmentType) string {
	switch t {
	case show.TypeAudio:
		return "mdi:speaker"
	case show.TypeLighting:
		return "mdi:spotlight-beam"
	case show.TypeVideo:
		return "mdi:television"
	case show.TypeAI:
		return "mdi:robot"
	}
	return ""
}

// buildDiscovery generates HA discovery messages for an equipment item: a
// switch for on/off control and a connectivity sensor for Online/Offline.
func buildDiscovery(item show.EquipmentItem, prefix string) []discoveryMsg {
	if item.ID == "" {
		return nil
	}
	nodeID := deviceIdentifier(item)
	displayName := deviceDisplayName(item)
	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: item.Brand,
		Model:        item.Model,
		Name:         displayName,
	}
	bridgeAvail := haAvailability{Topic: bridgeStateTopic(prefix)}

	sw := haDiscovery{
		Name:             displayName,
		UniqueID:         nodeID + "_switch",
		StateTopic:       stateTopic(prefix, item.ID),
		CommandTopic:     commandTopic(prefix, item.ID),
		Availability:     []haAvailability{bridgeAvail, {Topic: availabilityTopic(prefix, item.ID)}},
		AvailabilityMode: "all",
		ValueTemplate:    "{{ 'ON' if value_json.on else 'OFF' }}",
		PayloadOn:        `{"state":true}`,
		PayloadOff:       `{"state":false}`,
		StateOn:          "ON",
		StateOff:         "OFF",
		Icon:             equipmentIcon(item.Type),
		Device:           haDev,
	}
	conn := haDiscovery{
		Name:         displayName + " Connectivity",
		UniqueID:     nodeID + "_connectivity",
		StateTopic:   availabilityTopic(prefix, item.ID),
		Availability: []haAvailability{bridgeAvail},
		DeviceClass:  "connectivity",
		PayloadOn:    "online",
		PayloadOff:   "offline",
		Device:       haDev,
	}
	return []discoveryMsg{
		{Topic: fmt.Sprintf("homeassistant/switch/%s/switch/config", nodeID), Payload: mustJSON(sw)},
		{Topic: fmt.Sprintf("homeassistant/binary_sensor/%s/connectivity/config", nodeID), Payload: mustJSON(conn)},
	}
}

// buildRemoveDiscovery generates empty retained messages to remove an item from HA.
func buildRemoveDiscovery(item show.EquipmentItem) []discoveryMsg {
	nodeID := deviceIdentifier(item)
	return []discoveryMsg{
		{Topic: fmt.Sprintf("homeassistant/switch/%s/switch/config", nodeID)},
		{Topic: fmt.Sprintf("homeassistant/binary_sensor/%s/connectivity/config", nodeID)},
	}
}
