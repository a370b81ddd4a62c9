/*-
 * Copyright 2015 Square Inc.
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

package main

import (
	"strings"
	"time"

	prometheusmetrics "github.com/deathowl/go-metrics-prometheus"
	"github.com/ghostunnel/certinfo/certloader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
)

// loadMetrics tracks certificate loads. Counters and timers live in a
// go-metrics registry (shipped to graphite if enabled, and bridged to
// prometheus); per-path state is exported as prometheus gauges directly.
type loadMetrics struct {
	success metrics.Counter
	failure metrics.Counter
	latency metrics.Timer

	expired *prometheus.GaugeVec
	loaded  *prometheus.GaugeVec

	bridge *prometheusmetrics.PrometheusConfig
}

func newLoadMetrics(registry metrics.Registry, promRegistry prometheus.Registerer, prefix string) *loadMetrics {
	namespace := promNamespace(prefix)

	m := &loadMetrics{
		success: metrics.GetOrRegisterCounter("load.success", registry),
		failure: metrics.GetOrRegisterCounter("load.error", registry),
		latency: metrics.GetOrRegisterTimer("load.time", registry),
		expired: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "certificate_expired",
			Help:      "Whether the certificate at path is expired (1) or not (0).",
		}, []string{"path"}),
		loaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "certificate_loaded",
			Help:      "Whether the certificate at path loaded successfully (1) or not (0).",
		}, []string{"path"}),
		bridge: prometheusmetrics.NewPrometheusProvider(registry, namespace, "", promRegistry, time.Second),
	}

	promRegistry.MustRegister(m.expired, m.loaded)
	return m
}

// observe records the outcome of a single load that started at start.
func (m *loadMetrics) observe(path string, info certloader.CertificateInfo, err error, start time.Time) {
	m.latency.UpdateSince(start)

	if err != nil {
		m.failure.Inc(1)
		m.loaded.WithLabelValues(path).Set(0)
		m.expired.DeleteLabelValues(path)
		return
	}

	m.success.Inc(1)
	m.loaded.WithLabelValues(path).Set(1)
	if info.IsExpired {
		m.expired.WithLabelValues(path).Set(1)
	} else {
		m.expired.WithLabelValues(path).Set(0)
	}
}

// flush copies the go-metrics registry into prometheus.
func (m *loadMetrics) flush() {
	if err := m.bridge.UpdatePrometheusMetricsOnce(); err != nil {
		logger.Printf("error updating prometheus metrics: %s", err)
	}
}

// promNamespace turns a graphite style prefix into a valid prometheus
// namespace. Metric names may not start with a digit.
func promNamespace(prefix string) string {
	namespace := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, prefix)
	if namespace != "" && namespace[0] >= '0' && namespace[0] <= '9' {
		namespace = "_" + namespace
	}
	return namespace
}
