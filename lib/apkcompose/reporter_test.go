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
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).With().Str("job", "demo").Logger().WithContext(context.Background())
	before := testutil.ToFloat64(metricEvents.WithLabelValues("missing_manifest"))
	LogReporter{}.Report(ctx, Event{Job: "demo", Kind: MissingManifest, Output: "out.apk", Err: errors.New("no manifest")})
	assert.Equal(t, before+1, testutil.ToFloat64(metricEvents.WithLabelValues("missing_manifest")))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"event":"missing_manifest"`)
	assert.Contains(t, buf.String(), `"error":"no manifest"`)
	assert.Contains(t, buf.String(), `"job":"demo"`)

	buf.Reset()
	LogReporter{}.Report(ctx, Event{Job: "demo", Kind: MissingMetadata})
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "build_failed", BuildFailed.String())
	assert.Equal(t, "exception", Exception.String())
	assert.Equal(t, "unknown", EventKind(99).String())
}

func TestWriteMetrics(t *testing.T) {
	fx := newFixture(t)
	fx.comp.Reporter = LogReporter{}
	_, err := fx.comp.Rebuild(context.Background(), fx.job)
	require.NoError(t, err)
	name := filepath.Join(t.TempDir(), "apkrebuild.prom")
	require.NoError(t, WriteMetrics(name))
	assert.FileExists(t, name)
}
