/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package prometheus

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gometrics "github.com/rcrowley/go-metrics"

	"mosn.io/bolt/pkg/metrics"
)

const defaultEndpoint = "/metrics"

// Config contains config for PromSink
type Config struct {
	Endpoint string `json:"endpoint"`

	DisableCollectProcess bool `json:"disable_collect_process"`
	DisableCollectGo      bool `json:"disable_collect_go"`
	DisablePassiveFlush   bool `json:"disable_passive_flush"`
}

// PromSink copies the metrics store into prometheus gauges.
type PromSink struct {
	config *Config

	mutex     sync.Mutex
	registry  *prometheus.Registry
	gaugeVecs map[string]*prometheus.GaugeVec
}

type promHttpExporter struct {
	sink *PromSink
	real http.Handler
}

func (exporter *promHttpExporter) ServeHTTP(rsp http.ResponseWriter, req *http.Request) {
	// 1. flush metrics
	if !exporter.sink.config.DisablePassiveFlush {
		exporter.sink.Flush(metrics.Snapshot())
	}

	// 2. export
	exporter.real.ServeHTTP(rsp, req)
}

// NewPromSink returns a metrics sink that produces Prometheus metrics using store data
func NewPromSink(config *Config) (*PromSink, error) {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	} else if !strings.HasPrefix(config.Endpoint, "/") {
		return nil, fmt.Errorf("invalid endpoint format:%s", config.Endpoint)
	}

	promReg := prometheus.NewRegistry()
	// register process and  go metrics
	if !config.DisableCollectProcess {
		promReg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	if !config.DisableCollectGo {
		promReg.MustRegister(prometheus.NewGoCollector())
	}

	return &PromSink{
		config:    config,
		registry:  promReg,
		gaugeVecs: make(map[string]*prometheus.GaugeVec),
	}, nil
}

// Handler returns a mux serving the configured endpoint.
func (sink *PromSink) Handler() http.Handler {
	srvMux := http.NewServeMux()
	srvMux.Handle(sink.config.Endpoint, &promHttpExporter{
		sink: sink,
		real: promhttp.HandlerFor(sink.registry, promhttp.HandlerOpts{}),
	})
	return srvMux
}

// Flush copies every counter and gauge into the prometheus registry.
func (sink *PromSink) Flush(groups []*metrics.Group) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()

	for _, m := range groups {
		typ := m.Type()
		labelKeys, labelVals := m.Labels()

		m.Each(func(name string, i interface{}) {
			switch metric := i.(type) {
			case gometrics.Counter:
				sink.gauge(typ, labelKeys, labelVals, name).Set(float64(metric.Count()))
			case gometrics.Gauge:
				sink.gauge(typ, labelKeys, labelVals, name).Set(float64(metric.Value()))
			}
		})
	}
}

func (sink *PromSink) gauge(typ string, labelKeys, labelVals []string, name string) prometheus.Gauge {
	namespace := strings.Join(labelKeys, "_")
	key := namespace + "_" + typ + "_" + name
	g, ok := sink.gaugeVecs[key]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: flattenKey(namespace),
			Subsystem: flattenKey(typ),
			Name:      flattenKey(name),
		}, labelKeys)

		sink.registry.MustRegister(g)
		sink.gaugeVecs[key] = g
	}
	return g.WithLabelValues(labelVals...)
}

func flattenKey(key string) string {
	key = strings.Replace(key, " ", "_", -1)
	key = strings.Replace(key, ".", "_", -1)
	key = strings.Replace(key, "-", "_", -1)
	key = strings.Replace(key, "=", "_", -1)
	return key
}
