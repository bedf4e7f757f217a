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
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/config"
	"gitee.com/opengauss/mysql-sidecar/go/core/backup"
	"gitee.com/opengauss/mysql-sidecar/go/core/clone"
	"gitee.com/opengauss/mysql-sidecar/go/core/db"
	"gitee.com/opengauss/mysql-sidecar/go/core/identity"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/position"
	"gitee.com/opengauss/mysql-sidecar/go/core/replication"
	"gitee.com/opengauss/mysql-sidecar/go/core/stream"
	"gitee.com/opengauss/mysql-sidecar/go/core/system/osp"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"net"
	"strconv"
	"time"
)

// hostname of this node: flag, then config, then os hostname
func hostname(cliParam *dtstruct.CliParam) (string, error) {
	if cliParam.Hostname != "" {
		return cliParam.Hostname, nil
	}
	if config.Config.Hostname != "" {
		return config.Config.Hostname, nil
	}
	return osp.GetHostname()
}

func dataDir(cliParam *dtstruct.CliParam) string {
	if cliParam.DataDir != "" {
		return cliParam.DataDir
	}
	return config.Config.DataDir
}

// resolveNode compute identity once, the result is passed to every stage
func resolveNode(cliParam *dtstruct.CliParam) (dtstruct.NodeIdentity, error) {
	name, err := hostname(cliParam)
	if err != nil {
		return dtstruct.NodeIdentity{}, err
	}
	node, err := identity.Resolve(name, config.Config.GoverningServiceDomain, config.Config.ServerIDOffset)
	if err != nil {
		return node, log.Errore(err)
	}
	if cliParam.Source != "" {
		node.SourceHostAddress = cliParam.Source
	}
	log.Infof("node identity: %s", node)
	return node, nil
}

func newBackupTool() *backup.Xtrabackup {
	return &backup.Xtrabackup{
		XtrabackupBinary: config.Config.XtrabackupBinary,
		XbstreamBinary:   config.Config.XbstreamBinary,
		Host:             config.Config.MySQLHost,
		Port:             config.Config.MySQLPort,
		User:             config.Config.ReplicationUser,
		Password:         config.Config.ReplicationPassword,
	}
}

func newStorage() *backup.Storage {
	return &backup.Storage{RcloneBinary: config.Config.RcloneBinary, RcloneConfigFile: config.Config.RcloneConfigFile}
}

// newStreamSource pick consumer side of backup transport
func newStreamSource() (dtstruct.StreamSource, error) {
	if config.Config.CloneTransport == constant.CloneTransportHTTP {
		_, portStr, err := net.SplitHostPort(config.Config.HelperListenAddress)
		if err != nil {
			return nil, log.Errorf("invalid HelperListenAddress %s, error:%s", config.Config.HelperListenAddress, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, log.Errorf("invalid HelperListenAddress %s, error:%s", config.Config.HelperListenAddress, err)
		}
		return &stream.HTTPSource{
			Port:       port,
			User:       config.Config.BackupUser,
			Password:   config.Config.BackupPassword,
			Compressed: config.Config.StreamCompress,
		}, nil
	}
	return &stream.TCPSource{
		Port:        config.Config.BackupPort,
		DialTimeout: time.Duration(config.Config.ConnectTimeoutSeconds) * time.Second,
		Compressed:  config.Config.StreamCompress,
	}, nil
}

func newEngine(cliParam *dtstruct.CliParam) (*clone.Engine, error) {
	source, err := newStreamSource()
	if err != nil {
		return nil, err
	}
	return &clone.Engine{DataDir: dataDir(cliParam), Tool: newBackupTool(), Storage: newStorage(), Source: source}, nil
}

func newStreamServer(once bool) *stream.Server {
	return stream.NewServer(newBackupTool(), stream.Options{
		Compress:   config.Config.StreamCompress,
		BusyPolicy: config.Config.StreamBusyPolicy,
		Once:       once || config.Config.ServeOnce,
	})
}

// clientConfig read admin client config written by init-configs, config values are used when it does not exist yet
func clientConfig() *db.ClientConfig {
	path := config.Config.ClientConfigPath()
	if exist, _ := osp.PathExists(path); exist {
		if client, err := db.ReadClientConfig(path); err == nil {
			return client
		}
	}
	return &db.ClientConfig{
		Host:     config.Config.MySQLHost,
		Port:     config.Config.MySQLPort,
		User:     config.Config.MySQLUser,
		Password: config.Config.MySQLPassword,
	}
}

func openInstance() (*db.Instance, error) {
	return db.Open(clientConfig(), config.Config.ConnectTimeoutSeconds)
}

func newExtractor(cliParam *dtstruct.CliParam, client dtstruct.InstanceClient) *position.Extractor {
	extractor := position.NewExtractor(dataDir(cliParam), config.Config.IsGTIDMode(), client)
	extractor.PollInterval = time.Duration(config.Config.ReadinessPollIntervalMilliseconds) * time.Millisecond
	extractor.ReadyTimeout = time.Duration(config.Config.ReadinessTimeoutSeconds) * time.Second
	return extractor
}

func newConfigurator(client dtstruct.InstanceClient) *replication.Configurator {
	configurator := replication.NewConfigurator(client, config.Config.ReplicationUser, config.Config.ReplicationPassword)
	configurator.PrimaryPort = config.Config.MySQLPort
	configurator.ConnectRetry = config.Config.MasterConnectRetry
	configurator.PollInterval = time.Duration(config.Config.ReadinessPollIntervalMilliseconds) * time.Millisecond
	configurator.ReadyTimeout = time.Duration(config.Config.ReadinessTimeoutSeconds) * time.Second
	return configurator
}
