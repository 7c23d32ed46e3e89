//go:build no_mqtt

package main

import (
	"errors"
	"log/slog"

	"stage-command-center/internal/show"
)

func initMQTT(_ *Config, _ *show.EventBus, _ func() []show.EquipmentItem, _ *slog.Logger) (show.Dispatcher, func(), error) {
	return nil, nil, errors.New("built without mqtt support (no_mqtt tag)")
}
