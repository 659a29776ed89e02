// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/taskhive/flowengine/pkg/protocol"
	"github.com/taskhive/flowengine/pkg/registry"
)

const defaultHTTPTimeout = 30 * time.Second

// NewRegistry builds the processor registry: built-in node types plus any
// processor plugins found under pluginsPath.
func NewRegistry(
	logger *slog.Logger,
	pluginsPath string,
	store protocol.TaskStore,
	dispatcher protocol.NotificationDispatcher,
) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultProcessors(store, dispatcher, &http.Client{Timeout: defaultHTTPTimeout}, logger)

	if pluginsPath != "" {
		plugins, err := reg.LoadProcessorPlugins(pluginsPath)
		if err != nil {
			return nil, err
		}

		for _, plugin := range plugins {
			reg.Register(plugin, nil)
		}
	}

	return reg, nil
}
