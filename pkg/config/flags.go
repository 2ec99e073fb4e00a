package config

import (
	"errors"
	"flag"
	"log/slog"
	"os"
)

var configFilePath = flag.String("config_file", "", "Path to the .txtpb configuration file; empty skips it.")

// InitFlags initializes the flags from the config file specified by the -config_file flag.
// It should be called after defining all flags and before using them. Values in the config file override the command
// line.
func InitFlags() {
	flag.Parse()

	if *configFilePath == "" {
		slog.Info("Config file not specified. Skipping config initialization.")
		return
	}

	configBytes, err := os.ReadFile(*configFilePath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Config file does not exist.", "path", *configFilePath, "error", err)
		return
	}
	if err != nil { // If the config file cannot be read, we skip loading and use default flag values.
		slog.Error("Failed to read config file.", "error", err)
		return
	}

	if err := setConfigFlags(configBytes); err != nil {
		slog.Error("Failed to set flags from config file.", "error", err)
		return
	}
}
