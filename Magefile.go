//go:build mage
// +build mage

package main

import (
	"github.com/grafana/grafana-plugin-sdk-go/build"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default builds the plugin backend for every platform
func Default() error {
	return build.BuildAll()
}

// MCP builds the standalone MCP server
func MCP() error {
	return sh.RunV("go", "build", "-o", "dist/explore-mcp", "./cmd/explore-mcp")
}

// All builds the plugin backend and the MCP server
func All() {
	mg.SerialDeps(Default, MCP)
}

// Test runs the unit tests with the race detector
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}
