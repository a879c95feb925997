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

package apkcompose

import (
	"context"

	"github.com/rs/zerolog"
)

// EventKind classifies the outcome of a rebuild job
type EventKind int

const (
	Success EventKind = iota
	MissingManifest
	MissingMetadata
	BuildFailed
	Exception
)

func (k EventKind) String() string {
	switch k {
	case Success:
		return "success"
	case MissingManifest:
		return "missing_manifest"
	case MissingMetadata:
		return "missing_metadata"
	case BuildFailed:
		return "build_failed"
	case Exception:
		return "exception"
	default:
		return "unknown"
	}
}

// Event is sent to a Reporter when a job finishes or hits a notable condition
type Event struct {
	Job    string
	Kind   EventKind
	Output string
	Err    error
}

// Reporter receives job events
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

// LogReporter logs events to the context logger and counts them
type LogReporter struct{}

func (LogReporter) Report(ctx context.Context, ev Event) {
	metricEvents.WithLabelValues(ev.Kind.String()).Inc()
	logger := zerolog.Ctx(ctx)
	var e *zerolog.Event
	switch ev.Kind {
	case Success:
		e = logger.Info()
	case MissingMetadata:
		e = logger.Warn()
	default:
		e = logger.Error()
	}
	e.Str("event", ev.Kind.String()).
		Str("output", ev.Output).
		Err(ev.Err).
		Msg("rebuild " + ev.Kind.String())
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, Event) {}
