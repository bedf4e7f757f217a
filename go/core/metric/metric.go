/*
	Copyright 2021 SANGFOR TECHNOLOGIES

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

		http://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/
// Package metric holds the counters and timers of the sidecar, registered in the go-metrics default
// registry so that the helper http server can expose a snapshot of them.
package metric

import (
	"github.com/rcrowley/go-metrics"
	"sort"
	"time"
)

// Counter get or register counter with name
func Counter(name string) metrics.Counter {
	return metrics.GetOrRegisterCounter(name, metrics.DefaultRegistry)
}

// Timer get or register timer with name
func Timer(name string) metrics.Timer {
	return metrics.GetOrRegisterTimer(name, metrics.DefaultRegistry)
}

// Inc increase counter with name by one
func Inc(name string) {
	Counter(name).Inc(1)
}

// Since record time elapsed since start to timer with name
func Since(name string, start time.Time) {
	Timer(name).UpdateSince(start)
}

// Snapshot return current value of all counters and the count and mean(second) of all timers
func Snapshot() map[string]interface{} {
	snapshot := make(map[string]interface{})
	metrics.DefaultRegistry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Counter:
			snapshot[name] = m.Count()
		case metrics.Timer:
			t := m.Snapshot()
			snapshot[name+".count"] = t.Count()
			snapshot[name+".mean"] = time.Duration(t.Mean()).Seconds()
		}
	})
	return snapshot
}

// Names return sorted name of all registered metric
func Names() []string {
	var names []string
	metrics.DefaultRegistry.Each(func(name string, _ interface{}) {
		names = append(names, name)
	})
	sort.Strings(names)
	return names
}
