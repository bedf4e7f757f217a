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
package mycnf

import (
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/db"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"github.com/go-ini/ini"
	"os"
	"path/filepath"
	"strconv"
)

// DynamicConfig build the [mysqld] overrides computed from node identity
func DynamicConfig(node dtstruct.NodeIdentity) (*ini.File, error) {
	cfg := ini.Empty()
	mysqld := cfg.Section(constant.MySQLServerSection)
	if _, err := mysqld.NewKey("server-id", strconv.Itoa(node.ServerID)); err != nil {
		return nil, err
	}
	if _, err := mysqld.NewKey("report-host", node.ReportHost()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ClientConfig build the [client] section used by admin client and command line tools
func ClientConfig(client *db.ClientConfig) (*ini.File, error) {
	cfg := ini.Empty()
	section := cfg.Section(constant.MySQLClientSection)
	keys := [][2]string{
		{"host", client.Host},
		{"port", strconv.Itoa(client.Port)},
		{"user", client.User},
		{"password", client.Password},
	}
	if client.Socket != "" {
		keys = append(keys, [2]string{"socket", client.Socket})
	}
	for _, kv := range keys {
		if _, err := section.NewKey(kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Write save dynamic config and client config of node, parent directories are created
func Write(dynamicPath string, clientPath string, node dtstruct.NodeIdentity, client *db.ClientConfig) error {
	dynamic, err := DynamicConfig(node)
	if err != nil {
		return log.Errorf("build dynamic config, error:%s", err)
	}
	if err = save(dynamic, dynamicPath, 0644); err != nil {
		return err
	}
	clientCfg, err := ClientConfig(client)
	if err != nil {
		return log.Errorf("build client config, error:%s", err)
	}
	// client config holds password
	if err = save(clientCfg, clientPath, 0600); err != nil {
		return err
	}
	log.Infof("%s: wrote server-id %d to %s and client config to %s", node.Hostname, node.ServerID, dynamicPath, clientPath)
	return nil
}

func save(cfg *ini.File, path string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return log.Errorf("mkdir for %s, error:%s", path, err)
	}
	if err := cfg.SaveTo(path); err != nil {
		return log.Errorf("save %s, error:%s", path, err)
	}
	if err := os.Chmod(path, perm); err != nil {
		return log.Errorf("chmod %s, error:%s", path, err)
	}
	return nil
}
