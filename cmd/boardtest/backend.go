package main

import (
	"fmt"

	"go.uber.org/zap"

	"boardtest-go/config"
	"boardtest-go/hal"
	"boardtest-go/hal/mcphal"
	"boardtest-go/hal/periphhal"
	"boardtest-go/hal/simhal"
)

// defaultBoard is the built-in table used when no config file is given.
// The Linux backend has no default; its pins come from the config file.
var defaultBoard = map[string]string{
	config.BackendSim:      "feather",
	config.BackendMCP2221A: "mcp2221a",
}

func openBackend(f *config.File, log *zap.Logger) (hal.Provider, error) {
	switch f.Backend {
	case config.BackendSim:
		return simhal.New(), nil
	case config.BackendLinux:
		p, err := periphhal.New(periphhal.Options{
			I2CBus:     f.I2C.Name,
			SPIPort:    f.SPI.Name,
			SerialPort: f.Serial.Port,
		}, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.BackendMCP2221A:
		chip, err := mcphal.OpenUSB(int(f.MCP.Index))
		if err != nil {
			return nil, err
		}
		return mcphal.New(chip, mcphal.Options{
			I2CBaud:    f.MCP.I2CBaud,
			SerialPort: f.Serial.Port,
		}, log), nil
	}
	return nil, fmt.Errorf("unknown backend %q", f.Backend)
}
