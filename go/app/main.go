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
package main

import (
	"flag"
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/app/cli"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/config"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"github.com/uber/jaeger-client-go"
	jconfig "github.com/uber/jaeger-client-go/config"
	"io"
	"strings"
)

var AppVersion, GitCommit string

// main is the application's entry point, every operation is a cli command
func main() {
	configFile := flag.String("config", "", "config file name, environment variables are used when empty")
	command := flag.String("c", "", "command, required. See full list of commands via 'mysql-sidecar -c help'")
	hostname := flag.String("hostname", "", "node hostname, os hostname is used when empty")
	source := flag.String("source", "", "peer host to fetch backup stream from")
	destination := flag.String("destination", "", "bucket uri to upload backup to")
	position := flag.String("position", "", "replication position file:pos, overrides position found in data directory")
	dataDir := flag.String("datadir", "", "mysql data directory")
	once := flag.Bool("once", false, "serve a single backup session then exit")
	quiet := flag.Bool("quiet", false, "quiet")
	verbose := flag.Bool("verbose", false, "verbose")
	debug := flag.Bool("debug", false, "debug mode (very verbose)")
	stack := flag.Bool("stack", false, "add stack trace upon error")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// show help
	if flag.Arg(0) == "help" {
		helpTopic := flag.Arg(1)
		if helpTopic == "" {
			helpTopic = *command
		}
		cli.HelpCommand(helpTopic)
		return
	}
	if *version {
		fmt.Println(AppVersion)
		fmt.Println(GitCommit)
		return
	}
	// no command: just prompt
	if *command == "" {
		fmt.Println(cli.AppPrompt)
		return
	}

	if *verbose {
		log.SetLevel(log.INFO)
	}
	if *debug {
		log.SetLevel(log.DEBUG)
	}
	if *stack {
		log.SetPrintStackTrace(*stack)
	}

	startText := "starting " + constant.WhoAmI
	if AppVersion != "" {
		startText += ", version: " + AppVersion
	}
	if GitCommit != "" {
		startText += ", git commit: " + GitCommit
	}
	log.Info(startText)

	if len(*configFile) > 0 {
		config.ForceRead(*configFile)
	} else if err := config.ReadEnvironment(); err != nil {
		log.Fatale(err)
	}
	if names := config.EnvVariableNames(); len(names) > 0 {
		log.Infof("config overridden by environment: %s", strings.Join(names, ", "))
	}
	if config.Config.Debug {
		log.SetLevel(log.DEBUG)
	}
	if *quiet {
		// Override!!
		log.SetLevel(log.ERROR)
	}
	if config.Config.EnableSyslog {
		if err := log.EnableSyslogWriter(constant.WhoAmI); err == nil {
			log.SetSyslogLevel(log.INFO)
		}
	}

	if config.Config.EnableTracing {
		jcfg := jconfig.Configuration{Sampler: &jconfig.SamplerConfig{Type: jaeger.SamplerTypeConst, Param: 1}, Reporter: &jconfig.ReporterConfig{LogSpans: true, LocalAgentHostPort: config.Config.TracingAgentAddress}}
		var closer io.Closer
		var err error
		if closer, err = jcfg.InitGlobalTracer(constant.WhoAmI); err != nil {
			log.Warningf("cannot init tracer, error: %s", err)
		} else {
			defer closer.Close()
		}
	}

	cli.CliWrapper(*command, &dtstruct.CliParam{
		Hostname:    *hostname,
		Source:      *source,
		Destination: *destination,
		Position:    *position,
		DataDir:     *dataDir,
		Once:        *once,
	})
}
