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
package cli

import (
	"context"
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/app/http"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/config"
	"gitee.com/opengauss/mysql-sidecar/go/core/bootstrap"
	"gitee.com/opengauss/mysql-sidecar/go/core/clone"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/mycnf"
	"gitee.com/opengauss/mysql-sidecar/go/core/stream"
	"gitee.com/opengauss/mysql-sidecar/go/core/util"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"os"
	"os/signal"
	"syscall"
)

var commandMap map[string]dtstruct.CommandDesc

func init() {
	commandMap = make(map[string]dtstruct.CommandDesc)
	CliCmd(commandMap)
}

// CliWrapper is called from main, any command failure terminate process with non-zero exit code
func CliWrapper(command string, cliParam *dtstruct.CliParam) {
	if err := Cli(command, cliParam); err != nil {
		log.Fatale(err)
	}
}

// Cli execute requested command
func Cli(command string, cliParam *dtstruct.CliParam) error {
	if cliParam == nil {
		cliParam = &dtstruct.CliParam{}
	}
	cliParam.Command = command
	if cmd, ok := commandMap[command]; ok {
		return cmd.Func(cliParam)
	}
	return log.Errorf("Unknown command: \"%s\". %s", command, util.CommandUsage(commandMap))
}

// CliCmd register cli command
func CliCmd(commandMap map[string]dtstruct.CommandDesc) {
	metaCmd(commandMap)
	bootstrapCmd(commandMap)
	backupCmd(commandMap)
}

func metaCmd(commandMap map[string]dtstruct.CommandDesc) {
	util.RegisterCliCommand(commandMap, "help", "meta", `show all command`,
		func(cliParam *dtstruct.CliParam) error {
			fmt.Fprint(os.Stderr, util.CommandUsage(commandMap))
			return nil
		},
	)
	util.RegisterCliCommand(commandMap, "resolve", "meta", `resolve role and server id from hostname`,
		func(cliParam *dtstruct.CliParam) error {
			node, err := resolveNode(cliParam)
			if err != nil {
				return err
			}
			fmt.Println(node.String())
			return nil
		},
	)
}

func bootstrapCmd(commandMap map[string]dtstruct.CommandDesc) {
	util.RegisterCliCommand(commandMap, "init-configs", "bootstrap", `write server id and report host config, and admin client config`,
		func(cliParam *dtstruct.CliParam) error {
			node, err := resolveNode(cliParam)
			if err != nil {
				return err
			}
			return mycnf.Write(config.Config.DynamicConfigPath(), config.Config.ClientConfigPath(), node, clientConfig())
		},
	)
	util.RegisterCliCommand(commandMap, "clone", "bootstrap", `populate data directory from bucket or peer, no-op when already populated`,
		func(cliParam *dtstruct.CliParam) error {
			node, err := resolveNode(cliParam)
			if err != nil {
				return err
			}
			engine, err := newEngine(cliParam)
			if err != nil {
				return err
			}
			state, err := clone.InspectDataDir(engine.DataDir)
			if err != nil {
				return err
			}
			return engine.Bootstrap(context.Background(), node, state, config.Config.InitBucketURI)
		},
	)
	util.RegisterCliCommand(commandMap, "show-position", "bootstrap", `output replication position recorded in data directory`,
		func(cliParam *dtstruct.CliParam) error {
			node, err := resolveNode(cliParam)
			if err != nil {
				return err
			}
			var client dtstruct.InstanceClient
			if node.IsPrimary() {
				instance, err := openInstance()
				if err != nil {
					return err
				}
				defer instance.Close()
				client = instance
			}
			fmt.Println(newExtractor(cliParam, client).Extract(context.Background(), node).String())
			return nil
		},
	)
	util.RegisterCliCommand(commandMap, "configure-replication", "bootstrap", `configure replication on local instance, use --position file:pos to override extracted position`,
		func(cliParam *dtstruct.CliParam) error {
			node, err := resolveNode(cliParam)
			if err != nil {
				return err
			}
			instance, err := openInstance()
			if err != nil {
				return err
			}
			defer instance.Close()
			position := newExtractor(cliParam, instance).Extract(context.Background(), node)
			if cliParam.Position != "" {
				coordinates, err := dtstruct.ParseLogCoordinates(cliParam.Position)
				if err != nil {
					return log.Errore(err)
				}
				position = dtstruct.NewCoordinatesPosition(coordinates.LogFile, coordinates.LogPos, "command line")
			}
			if err = newConfigurator(instance).Run(context.Background(), node, position); err != nil {
				return err
			}
			if node.IsPrimary() || cliParam.Position != "" || position.IsUnknown() {
				return nil
			}
			return newExtractor(cliParam, nil).Retire()
		},
	)
	util.RegisterCliCommand(commandMap, "bootstrap", "bootstrap", `resolve identity, clone data, extract position and configure replication`,
		func(cliParam *dtstruct.CliParam) error {
			name, err := hostname(cliParam)
			if err != nil {
				return err
			}
			engine, err := newEngine(cliParam)
			if err != nil {
				return err
			}
			instance, err := openInstance()
			if err != nil {
				return err
			}
			defer instance.Close()
			orchestrator := &bootstrap.Orchestrator{
				Hostname:       name,
				Domain:         config.Config.GoverningServiceDomain,
				ServerIDOffset: config.Config.ServerIDOffset,
				SeedURI:        config.Config.InitBucketURI,
				Clone:          engine,
				Extractor:      newExtractor(cliParam, instance),
				Configurator:   newConfigurator(instance),
			}
			_, err = orchestrator.Run(context.Background())
			return err
		},
	)
}

func backupCmd(commandMap map[string]dtstruct.CommandDesc) {
	util.RegisterCliCommand(commandMap, "take-backup", "backup", `stream backup from --source and upload it to --destination`,
		func(cliParam *dtstruct.CliParam) error {
			if cliParam.Source == "" || cliParam.Destination == "" {
				return log.Errorf("--source and --destination are required for %s", cliParam.Command)
			}
			engine, err := newEngine(cliParam)
			if err != nil {
				return err
			}
			return engine.TakeBackup(context.Background(), cliParam.Source, cliParam.Destination)
		},
	)
	util.RegisterCliCommand(commandMap, "serve-backups", "backup", `serve backup stream on backup port, use --once to exit after first session`,
		func(cliParam *dtstruct.CliParam) error {
			wp := dtstruct.NewWorkerPool()
			srv := newStreamServer(cliParam.Once)
			if err := runStreamServer(wp, srv, fmt.Sprintf(":%d", config.Config.BackupPort)); err != nil {
				return err
			}
			if err := runSignalHandler(wp); err != nil {
				return err
			}
			return wp.WaitStop()
		},
	)
	util.RegisterCliCommand(commandMap, "serve", "backup", `serve backup stream on backup port and helper http api`,
		func(cliParam *dtstruct.CliParam) error {
			wp := dtstruct.NewWorkerPool()
			srv := newStreamServer(cliParam.Once)
			if err := runStreamServer(wp, srv, fmt.Sprintf(":%d", config.Config.BackupPort)); err != nil {
				return err
			}
			helper := http.NewServer(config.Config.HelperListenAddress, srv, config.Config.BackupUser, config.Config.BackupPassword)
			if err := helper.Listen(); err != nil {
				wp.Exit(os.Interrupt)
				return err
			}
			if err := helper.Run(wp); err != nil {
				return err
			}
			if err := runSignalHandler(wp); err != nil {
				return err
			}
			return wp.WaitStop()
		},
	)
}

// runStreamServer serve backup stream in worker, stop when pool exit
func runStreamServer(wp *dtstruct.WorkerPool, srv *stream.Server, address string) error {
	if err := srv.Listen(address); err != nil {
		return err
	}
	return wp.AsyncRun(constant.WorkerNameStreamServer, func(workerExit chan struct{}) error {
		go func() {
			<-workerExit
			_ = srv.Close()
		}()
		err := srv.Serve()
		if srv.Options().Once {
			wp.Exit(os.Interrupt)
		}
		return err
	})
}

// runSignalHandler stop all worker on SIGINT or SIGTERM
func runSignalHandler(wp *dtstruct.WorkerPool) error {
	return wp.AsyncRun(constant.WorkerNameSignal, func(workerExit chan struct{}) error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Infof("receive signal %s, stopping", sig)
			wp.Exit(sig)
		case <-workerExit:
		}
		return nil
	})
}
