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
package bootstrap

import (
	"context"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/clone"
	"gitee.com/opengauss/mysql-sidecar/go/core/identity"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/metric"
	"gitee.com/opengauss/mysql-sidecar/go/core/position"
	"gitee.com/opengauss/mysql-sidecar/go/core/replication"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/sjmudd/stopwatch"
	"strings"
	"time"
)

// stages of a bootstrap run, in order
const (
	StageResolve   = "resolve"
	StageClone     = "clone"
	StageExtract   = "extract"
	StageConfigure = "configure"
	stageTotal     = "total"
)

var stages = []string{StageResolve, StageClone, StageExtract, StageConfigure}

// Orchestrator run resolve, clone, extract and configure in sequence. Any failure aborts the run,
// a re-run starts over relying on every stage being idempotent.
type Orchestrator struct {
	Hostname       string
	Domain         string
	ServerIDOffset int
	SeedURI        string

	Clone        *clone.Engine
	Extractor    *position.Extractor
	Configurator *replication.Configurator
}

// Result of a successful run
type Result struct {
	Node     dtstruct.NodeIdentity
	State    clone.DataDirState
	Action   clone.Action
	Position dtstruct.ReplicationPosition
	Latency  map[string]time.Duration
}

// Run bootstrap this node
func (o *Orchestrator) Run(ctx context.Context) (result *Result, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Bootstrap")
	defer span.Finish()

	latency := stopwatch.NewNamedStopwatch()
	if e := latency.AddMany(append([]string{stageTotal}, stages...)); e != nil {
		log.Errore(e)
	}
	latency.Start(stageTotal)
	metric.Inc(constant.MetricBootstrapRun)
	result = &Result{Latency: make(map[string]time.Duration)}

	defer func() {
		latency.Stop(stageTotal)
		for _, name := range append(stages, stageTotal) {
			result.Latency[name] = latency.Elapsed(name)
		}
		if err != nil {
			metric.Inc(constant.MetricBootstrapFail)
			ext.Error.Set(span, true)
			span.LogKV("error", err.Error())
			log.Errorf("bootstrap of %s failed, %s", o.Hostname, summary(result.Latency))
			result = nil
			return
		}
		log.Infof("bootstrap of %s done, %s", result.Node, summary(result.Latency))
	}()

	err = o.stage(ctx, latency, StageResolve, func(ctx context.Context) error {
		var err error
		result.Node, err = identity.ResolveLocal(o.Hostname, o.Domain, o.ServerIDOffset)
		return log.Errore(err)
	})
	if err != nil {
		return result, err
	}
	node := result.Node
	span.SetTag("node", node.Hostname)
	span.SetTag("role", string(node.Role))

	err = o.stage(ctx, latency, StageClone, func(ctx context.Context) error {
		var err error
		if result.State, err = clone.InspectDataDir(o.Clone.DataDir); err != nil {
			return err
		}
		result.Action = clone.Decide(node, result.State, o.SeedURI)
		return o.Clone.Bootstrap(ctx, node, result.State, o.SeedURI)
	})
	if err != nil {
		return result, err
	}

	_ = o.stage(ctx, latency, StageExtract, func(ctx context.Context) error {
		result.Position = o.Extractor.Extract(ctx, node)
		return nil
	})

	err = o.stage(ctx, latency, StageConfigure, func(ctx context.Context) error {
		if err := o.Configurator.Run(ctx, node, result.Position); err != nil {
			return err
		}
		if node.IsPrimary() || result.Position.IsUnknown() {
			return nil
		}
		return o.Extractor.Retire()
	})
	return result, err
}

// stage run f in its own span and timer
func (o *Orchestrator) stage(ctx context.Context, latency *stopwatch.NamedStopwatch, name string, f func(ctx context.Context) error) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Bootstrap "+name)
	defer span.Finish()
	latency.Start(name)
	defer latency.Stop(name)

	log.Infof("bootstrap stage %s", name)
	if err := f(ctx); err != nil {
		ext.Error.Set(span, true)
		span.LogKV("error", err.Error())
		return err
	}
	return nil
}

func summary(latency map[string]time.Duration) string {
	parts := make([]string, 0, len(latency))
	for _, name := range append(stages, stageTotal) {
		parts = append(parts, name+":"+latency[name].Round(time.Millisecond).String())
	}
	return strings.Join(parts, ", ")
}
