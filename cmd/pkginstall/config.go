package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/distribution/pkginstall/configuration"
)

// loadConfiguration reads cfgFile (if set), applying "file, then
// environment, then explicit flag" precedence (configuration.Load
// already applies the PKGINSTALL_* environment overlay).
func loadConfiguration(cfgFile string) (*configuration.Configuration, error) {
	var data []byte
	if cfgFile != "" {
		var err error
		data, err = os.ReadFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", cfgFile, err)
		}
	}
	return configuration.Load(data)
}

func configureLogging(cfg *configuration.Configuration) {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch cfg.Log.Formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{})
	default:
		logrus.Warnf("pkginstall: unsupported log formatter %q, using text", cfg.Log.Formatter)
	}
}
