/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logsetup configures the process-wide zerolog logger
package logsetup

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

// Setup points the global logger at the requested destination and level. An
// empty file writes pretty text to stderr, "-" writes JSON to stderr, and
// anything else appends JSON to that file, following it across log rotation.
func Setup(levelName, logFile string) error {
	out, err := output(logFile, os.Stderr)
	if err != nil {
		return err
	}
	level, err := parseLevel(levelName)
	if err != nil {
		return err
	}
	zerolog.TimeFieldFormat = rfc3339Milli
	zerolog.DurationFieldInteger = true
	log.Logger = zerolog.New(out).With().Timestamp().Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger
	// pass stdlib logger through
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
	return nil
}

func output(logFile string, stderr io.Writer) (io.Writer, error) {
	switch logFile {
	case "-":
		return stderr, nil
	case "":
		return zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly}, nil
	default:
		w, err := NewFileWriter(logFile)
		if err != nil {
			return nil, fmt.Errorf("logging.file: %w", err)
		}
		return w, nil
	}
}

func parseLevel(levelName string) (zerolog.Level, error) {
	if levelName == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
