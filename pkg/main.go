package main

import (
	"os"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"

	"github.com/sabio/grafana-explore-assistant/pkg/plugin"
)

func main() {
	p := plugin.NewPlugin()

	if err := backend.Manage("sabio-explore-assistant", backend.ServeOpts{
		CallResourceHandler: p,
		CheckHealthHandler:  p,
	}); err != nil {
		log.DefaultLogger.Error("Plugin exited with error", "error", err)
		os.Exit(1)
	}
}
