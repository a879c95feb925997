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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

	metricEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apkrebuild_events_total",
			Help: "Outcome events reported for rebuild jobs",
		},
		[]string{"kind"},
	)
	metricEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apkrebuild_entries_total",
			Help: "Entries added to rebuilt packages, by the phase that contributed them",
		},
		[]string{"phase"},
	)
	metricSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apkrebuild_reused_total",
		Help: "Rebuilds skipped because the recorded output was still valid",
	})
	metricDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apkrebuild_duration_seconds",
			Help:    "Histogram of rebuild durations",
			Buckets: buckets,
		},
		[]string{"result"},
	)
)

// WriteMetrics saves the current metric values to a node-exporter textfile
func WriteMetrics(filename string) error {
	return prometheus.WriteToTextfile(filename, prometheus.DefaultGatherer)
}
