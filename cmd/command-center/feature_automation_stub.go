//go:build no_automation

package main

import (
	"log/slog"

	"stage-command-center/internal/show"
	"stage-command-center/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *show.Show, _ *Config, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
