package config

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging настраивает глобальный logrus по log_level и log_format.
func (c *Config) ConfigureLogging() error {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	switch c.LogFormat {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)

	return nil
}
