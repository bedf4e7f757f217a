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
package config

import (
	"encoding/json"
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/util"
	"github.com/mitchellh/mapstructure"
	"os"
	"path/filepath"
	"strings"
)

var (
	envVariableNames = []string{}
	readFileNames    []string
)

// Config is the global configuration of the sidecar
var Config = newConfiguration()

// Configuration makes for sidecar configuration input, which can be provided by user via JSON formatted file
// and overridden by MYSQL_SIDECAR_ prefixed environment variables.
type Configuration struct {
	Debug        bool `env:"DEBUG"`         // set debug mode (similar to --debug option)
	EnableSyslog bool `env:"ENABLE_SYSLOG"` // should logs be directed (in addition) to syslog daemon?

	// node identity
	Hostname               string `env:"HOSTNAME_OVERRIDE"`        // hostname used instead of os hostname, for test
	GoverningServiceDomain string `env:"GOVERNING_SERVICE_DOMAIN"` // appended to peer hosts, e.g. mysql.default.svc
	ServerIDOffset         int    `env:"SERVER_ID_OFFSET"`         // server id of node with ordinal 0

	// local mysql
	DataDir               string `env:"DATA_DIR"`
	ConfigDir             string `env:"CONFIG_DIR"`
	MySQLClientConfigFile string `env:"MYSQL_CLIENT_CONFIG_FILE"` // admin client config file, relative to ConfigDir if not absolute
	MySQLHost             string `env:"MYSQL_HOST"`
	MySQLPort             int    `env:"MYSQL_PORT"`
	MySQLUser             string `env:"MYSQL_USER"`
	MySQLPassword         string `env:"MYSQL_PASSWORD"`
	ConnectTimeoutSeconds int    `env:"CONNECT_TIMEOUT_SECONDS"`

	// replication
	ReplicationUser                   string `env:"REPLICATION_USER"`
	ReplicationPassword               string `env:"REPLICATION_PASSWORD"`
	ReplicationMode                   string `env:"REPLICATION_MODE"` // coordinates or gtid
	MasterConnectRetry                int    `env:"MASTER_CONNECT_RETRY"`
	ReadinessPollIntervalMilliseconds int    `env:"READINESS_POLL_INTERVAL_MILLISECONDS"`
	ReadinessTimeoutSeconds           int    `env:"READINESS_TIMEOUT_SECONDS"` // 0 means wait until process is killed

	// clone and backup
	InitBucketURI    string `env:"INIT_BUCKET_URI"` // object storage seed of a fresh primary
	RcloneConfigFile string `env:"RCLONE_CONFIG_FILE"`
	BackupUser       string `env:"BACKUP_USER"`
	BackupPassword   string `env:"BACKUP_PASSWORD"`
	BackupPort       int    `env:"BACKUP_PORT"`
	StreamCompress   bool   `env:"STREAM_COMPRESS"`    // gzip backup stream on the wire
	StreamBusyPolicy string `env:"STREAM_BUSY_POLICY"` // reject or queue a consumer while a session is active
	CloneTransport   string `env:"CLONE_TRANSPORT"`    // tcp or http
	ServeOnce        bool   `env:"SERVE_ONCE"`         // serve one backup session then exit
	XtrabackupBinary string `env:"XTRABACKUP_BINARY"`
	XbstreamBinary   string `env:"XBSTREAM_BINARY"`
	RcloneBinary     string `env:"RCLONE_BINARY"`

	// helper http server
	HelperListenAddress string `env:"HELPER_LISTEN_ADDRESS"`

	// tracing
	EnableTracing       bool   `env:"ENABLE_TRACING"`
	TracingAgentAddress string `env:"TRACING_AGENT_ADDRESS"`
}

// newConfiguration create configuration with default value
func newConfiguration() *Configuration {
	return &Configuration{
		Debug:                             false,
		EnableSyslog:                      false,
		GoverningServiceDomain:            "",
		ServerIDOffset:                    constant.ServerIDOffset,
		DataDir:                           constant.MySQLDataDir,
		ConfigDir:                         constant.MySQLConfigDir,
		MySQLClientConfigFile:             constant.MySQLClientConfigFile,
		MySQLHost:                         constant.DefaultTestHost,
		MySQLPort:                         constant.MySQLPort,
		MySQLUser:                         "root",
		ConnectTimeoutSeconds:             constant.ConnectTimeout,
		ReplicationUser:                   "repl",
		ReplicationMode:                   constant.ReplicationModeCoordinates,
		MasterConnectRetry:                constant.MySQLMasterConnectRetry,
		ReadinessPollIntervalMilliseconds: constant.ReadinessPollInterval,
		ReadinessTimeoutSeconds:           0,
		RcloneConfigFile:                  constant.RcloneConfigFile,
		BackupUser:                        "backup",
		BackupPort:                        constant.BackupPort,
		StreamCompress:                    false,
		StreamBusyPolicy:                  constant.StreamBusyPolicyReject,
		CloneTransport:                    constant.CloneTransportTCP,
		ServeOnce:                         false,
		XtrabackupBinary:                  constant.XtrabackupBinary,
		XbstreamBinary:                    constant.XbstreamBinary,
		RcloneBinary:                      constant.RcloneBinary,
		HelperListenAddress:               constant.HelperListenAddress,
		EnableTracing:                     false,
		TracingAgentAddress:               "127.0.0.1:6831",
	}
}

// ClientConfigPath is the absolute path of admin client config file
func (config *Configuration) ClientConfigPath() string {
	if filepath.IsAbs(config.MySQLClientConfigFile) {
		return config.MySQLClientConfigFile
	}
	return filepath.Join(config.ConfigDir, config.MySQLClientConfigFile)
}

// DynamicConfigPath is the absolute path of mysqld config file holding per node settings
func (config *Configuration) DynamicConfigPath() string {
	return filepath.Join(config.ConfigDir, constant.MySQLConfDDir, constant.MySQLDynamicConfigFile)
}

// IsGTIDMode return true if replicas use gtid auto position
func (config *Configuration) IsGTIDMode() bool {
	return config.ReplicationMode == constant.ReplicationModeGTID
}

// postReadAdjustment validate configuration and fill in values depending on others
func (config *Configuration) postReadAdjustment() error {
	config.ReplicationMode = strings.ToLower(strings.TrimSpace(config.ReplicationMode))
	if !util.HasString(config.ReplicationMode, []string{constant.ReplicationModeCoordinates, constant.ReplicationModeGTID}) {
		return fmt.Errorf("ReplicationMode must be one of %s|%s, got: %s", constant.ReplicationModeCoordinates, constant.ReplicationModeGTID, config.ReplicationMode)
	}
	config.StreamBusyPolicy = strings.ToLower(strings.TrimSpace(config.StreamBusyPolicy))
	if !util.HasString(config.StreamBusyPolicy, []string{constant.StreamBusyPolicyReject, constant.StreamBusyPolicyQueue}) {
		return fmt.Errorf("StreamBusyPolicy must be one of %s|%s, got: %s", constant.StreamBusyPolicyReject, constant.StreamBusyPolicyQueue, config.StreamBusyPolicy)
	}
	config.CloneTransport = strings.ToLower(strings.TrimSpace(config.CloneTransport))
	if !util.HasString(config.CloneTransport, []string{constant.CloneTransportTCP, constant.CloneTransportHTTP}) {
		return fmt.Errorf("CloneTransport must be one of %s|%s, got: %s", constant.CloneTransportTCP, constant.CloneTransportHTTP, config.CloneTransport)
	}
	if err := util.CheckPort(config.BackupPort); err != nil {
		return fmt.Errorf("invalid BackupPort: %s", err)
	}
	if err := util.CheckPort(config.MySQLPort); err != nil {
		return fmt.Errorf("invalid MySQLPort: %s", err)
	}
	if err := util.CheckHostPort(config.HelperListenAddress); err != nil {
		return fmt.Errorf("invalid HelperListenAddress: %s", err)
	}
	if config.ServerIDOffset < 1 {
		return fmt.Errorf("ServerIDOffset must be positive, got: %d", config.ServerIDOffset)
	}
	if config.ReadinessPollIntervalMilliseconds <= 0 {
		config.ReadinessPollIntervalMilliseconds = constant.ReadinessPollInterval
	}
	if config.ReadinessTimeoutSeconds < 0 {
		config.ReadinessTimeoutSeconds = 0
	}
	if config.MasterConnectRetry <= 0 {
		config.MasterConnectRetry = constant.MySQLMasterConnectRetry
	}
	if config.ConnectTimeoutSeconds <= 0 {
		config.ConnectTimeoutSeconds = constant.ConnectTimeout
	}
	if config.DataDir == "" {
		return fmt.Errorf("DataDir should not be empty")
	}
	return nil
}

// applyEnvironment override configuration with environment variables, value are weakly typed so that
// "true", "1" and "3307" are decoded into the field type
func (config *Configuration) applyEnvironment(environ []string) error {
	input := make(map[string]interface{})
	for _, kv := range environ {
		if !strings.HasPrefix(kv, constant.EnvPrefix) {
			continue
		}
		pair := strings.SplitN(strings.TrimPrefix(kv, constant.EnvPrefix), "=", 2)
		if len(pair) != 2 {
			continue
		}
		input[pair[0]] = pair[1]
		envVariableNames = append(envVariableNames, constant.EnvPrefix+pair[0])
	}
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "env",
		WeaklyTypedInput: true,
		Result:           config,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// read reads configuration from given file, or silently skips if the file does not exist.
// If the file does exist, then it is expected to be in valid JSON format or the function bails out.
func read(fileName string) (*Configuration, error) {
	if fileName == "" {
		return Config, fmt.Errorf("empty file name")
	}
	file, err := os.Open(fileName)
	if err != nil {
		return Config, err
	}
	defer file.Close()
	if err = json.NewDecoder(file).Decode(Config); err != nil {
		return Config, log.Errorf("cannot read config file %s, error: %s", fileName, err)
	}
	log.Infof("read config: %s", fileName)
	if err = Config.applyEnvironment(os.Environ()); err != nil {
		return Config, log.Errorf("cannot apply environment to config, error: %s", err)
	}
	if err = Config.postReadAdjustment(); err != nil {
		return Config, log.Errore(err)
	}
	return Config, nil
}

// Read reads configuration from zero, either, some or all given files, in order of input.
// A file can override configuration provided in previous file.
func Read(fileNames ...string) *Configuration {
	for _, fileName := range fileNames {
		_, _ = read(fileName)
	}
	readFileNames = fileNames
	return Config
}

// ForceRead reads configuration from given file name or bails out if it fails
func ForceRead(fileName string) *Configuration {
	if _, err := read(fileName); err != nil {
		log.Fatalf("cannot read config file %s, error: %s", fileName, err)
	}
	readFileNames = []string{fileName}
	return Config
}

// ReadEnvironment apply environment variables only, used when no config file is given
func ReadEnvironment() error {
	if err := Config.applyEnvironment(os.Environ()); err != nil {
		return log.Errorf("cannot apply environment to config, error: %s", err)
	}
	return log.Errore(Config.postReadAdjustment())
}

// Reload re-reads configuration from last used files
func Reload(extraFileNames ...string) *Configuration {
	for _, fileName := range readFileNames {
		_, _ = read(fileName)
	}
	for _, fileName := range extraFileNames {
		_, _ = read(fileName)
	}
	return Config
}

// EnvVariableNames return name of environment variables applied to config
func EnvVariableNames() []string {
	return envVariableNames
}

// Reset restore configuration to default value
func Reset() {
	Config = newConfiguration()
	readFileNames = nil
	envVariableNames = []string{}
}
