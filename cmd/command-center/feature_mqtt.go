//go:build !no_mqtt

package main

import (
	"log/slog"

	mqttdispatch "stage-command-center/internal/mqtt"

	"stage-command-center/internal/show"
)

func initMQTT(cfg *Config, events *show.EventBus, equipment func() []show.EquipmentItem, logger *slog.Logger) (show.Dispatcher, func(), error) {
	d, err := mqttdispatch.NewDispatcher(mqttdispatch.Config{
		Broker:      cfg.MQTT.Broker,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Discovery:   cfg.MQTT.Discovery,
	}, equipment, logger)
	if err != nil {
		return nil, nil, err
	}
	d.Watch(events)
	return d, d.Stop, nil
}
