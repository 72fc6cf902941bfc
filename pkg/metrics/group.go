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

package metrics

import (
	"sort"
	"strings"
	"sync"

	gometrics "github.com/rcrowley/go-metrics"
)

// Label is one key/value pair identifying a Group.
type Label struct {
	Key   string
	Value string
}

// Group holds the counters and gauges of one component instance, such as the
// codec of a protocol or a named executor. Sinks read every group through Snapshot.
type Group struct {
	id        string
	typ       string
	labelKeys []string
	labelVals []string
	registry  gometrics.Registry
}

var groups = struct {
	sync.RWMutex
	byID map[string]*Group
}{byID: make(map[string]*Group)}

// GetGroup returns the group registered under typ and labels, creating it on
// first use. Label order does not matter.
func GetGroup(typ string, labels ...Label) *Group {
	sorted := make([]Label, len(labels))
	copy(sorted, labels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString(typ)
	for _, l := range sorted {
		b.WriteString("." + l.Key + "." + l.Value)
	}
	id := b.String()

	groups.RLock()
	g, ok := groups.byID[id]
	groups.RUnlock()
	if ok {
		return g
	}

	groups.Lock()
	defer groups.Unlock()
	if g, ok := groups.byID[id]; ok {
		return g
	}
	g = &Group{
		id:        id,
		typ:       typ,
		labelKeys: make([]string, 0, len(sorted)),
		labelVals: make([]string, 0, len(sorted)),
		registry:  gometrics.NewRegistry(),
	}
	for _, l := range sorted {
		g.labelKeys = append(g.labelKeys, l.Key)
		g.labelVals = append(g.labelVals, l.Value)
	}
	groups.byID[id] = g
	return g
}

func (g *Group) Type() string {
	return g.typ
}

// Labels returns the label keys sorted, with their values in the same order.
func (g *Group) Labels() (keys, values []string) {
	return g.labelKeys, g.labelVals
}

func (g *Group) Counter(key string) gometrics.Counter {
	return g.registry.GetOrRegister(key, gometrics.NewCounter).(gometrics.Counter)
}

func (g *Group) Gauge(key string) gometrics.Gauge {
	return g.registry.GetOrRegister(key, gometrics.NewGauge).(gometrics.Gauge)
}

// FunctionalGauge registers a gauge whose value is read from f on every flush.
// The first registration under key wins.
func (g *Group) FunctionalGauge(key string, f func() int64) gometrics.Gauge {
	return g.registry.GetOrRegister(key, func() gometrics.Gauge {
		return gometrics.NewFunctionalGauge(f)
	}).(gometrics.Gauge)
}

func (g *Group) Each(f func(string, interface{})) {
	g.registry.Each(f)
}

// Snapshot returns every registered group ordered by type and labels.
func Snapshot() []*Group {
	groups.RLock()
	defer groups.RUnlock()
	all := make([]*Group, 0, len(groups.byID))
	for _, g := range groups.byID {
		all = append(all, g)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })
	return all
}

// Reset drops every group. Stats structs created before keep their counters
// but are no longer exported.
func Reset() {
	groups.Lock()
	defer groups.Unlock()
	for _, g := range groups.byID {
		g.registry.UnregisterAll()
	}
	groups.byID = make(map[string]*Group)
}
