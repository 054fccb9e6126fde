package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// LogConfig configures handling of application log events (spec §6).
type LogConfig struct {
	Level    string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	File     string `long:"log-file" env:"LOG_FILE" description:"Path to write logs to; unset disables file logging"`
	ToStdout bool   `long:"log-to-stdout" env:"LOG_TO_STDOUT" description:"Also write logs to stdout"`
}

// initLog applies cfg to the standard logrus logger and returns a closer
// to flush/close any opened log file.
func initLog(cfg LogConfig) (func(), error) {
	lvl, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	log.SetLevel(lvl)

	var writers []io.Writer
	closer := func() {}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %q: %w", cfg.File, err)
		}
		writers = append(writers, f)
		closer = func() { f.Close() }
	}
	if cfg.ToStdout || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	if len(writers) == 1 {
		log.SetOutput(writers[0])
	} else {
		log.SetOutput(io.MultiWriter(writers...))
	}

	return closer, nil
}
