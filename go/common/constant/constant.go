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
package constant

import (
	"time"
)

const (
	// app config
	WhoAmI          = "mysql-sidecar"
	EnvPrefix       = "MYSQL_SIDECAR_" // prefix of environment variables overriding config
	DefaultTestHost = "127.0.0.1"

	// node identity
	ServerIDOffset      = 100 // server id of ordinal 0
	OrdinalSeparator    = "-" // ordinal is the integer after the last separator of hostname
	PrimaryOrdinal      = 0
	DefaultGovService   = "mysql"
	DefaultClusterLabel = "mysql"

	// mysql
	MySQLPort               = 3306
	MySQLDataDir            = "/var/lib/mysql"
	MySQLConfigDir          = "/etc/mysql"
	MySQLConfDDir           = "conf.d"
	MySQLClientConfigFile   = "client.cnf"
	MySQLDynamicConfigFile  = "10-dynamic.cnf"
	MySQLClientSection      = "client"
	MySQLServerSection      = "mysqld"
	MySQLLivenessQuery      = "select 1"
	MySQLMasterConnectRetry = 10 // seconds between reconnect attempts of replica io thread
	MySQLReadTimeout        = 30 // second
	MySQLMaxPoolConnections = 2
	MySQLDriverName         = "mysql"

	// data directory markers
	DataDirMarker       = "mysql"          // internal schema directory, present once mysqld initialised the data dir
	DataDirLostFound    = "lost+found"     // created by some filesystems, must be removed before clone
	OperatorDatabase    = "sys_operator"   // database holding bootstrap bookkeeping tables
	OperatorInitTable   = "init"           // csv table, one row per completed bootstrap
	OperatorInitCSVFile = "init.CSV"       // on disk file of csv table
	OperatorInitKey     = "init_completed" // name column value of bootstrap row

	// xtrabackup metadata files
	ReplicaInfoFile = "xtrabackup_slave_info"  // written when backup was taken on a replica (--slave-info)
	BinlogInfoFile  = "xtrabackup_binlog_info" // written when backup was taken on a primary
	AppliedSuffix   = ".applied"               // metadata file already used to configure replication

	// replication mode
	ReplicationModeCoordinates = "coordinates"
	ReplicationModeGTID        = "gtid"

	// backup stream
	BackupPort              = 3307
	StreamBusyPolicyReject  = "reject" // close extra consumers right away
	StreamBusyPolicyQueue   = "queue"  // let extra consumers wait for the current session
	CloneTransportTCP       = "tcp"
	CloneTransportHTTP      = "http"
	StreamCopyBufferSize    = 1 << 20
	StreamDialRetryInterval = 1 * time.Second

	// object storage
	RcloneConfigFile  = "/etc/rclone.conf"
	StorageSchemeFile = "file"

	// external binaries
	XtrabackupBinary = "xtrabackup"
	XbstreamBinary   = "xbstream"
	RcloneBinary     = "rclone"

	// helper http server
	HelperListenAddress = ":8088"
	HelperHealthPath    = "/health"
	HelperStatusPath    = "/api/status"
	HelperBackupPath    = "/xbackup"
	HttpLimit           = 0.2 // backup requests per second
	HttpLimitBurst      = 1
	HttpReadTimeout     = 5  // second
	HttpShutdownTimeout = 10 // second

	// retry
	RetryInterval         = 500 * time.Millisecond
	ReadinessPollInterval = 1000 // millisecond

	// worker pool
	WorkerDefaultQuantity  = 5 // default number of workers
	WorkerNameStreamServer = "StreamServer"
	WorkerNameHttpServer   = "HttpServer"
	WorkerNameSignal       = "SignalWatcher"

	// date format
	DateFormatLog    = "2006-01-02 15:04:05"
	DateFormatBackup = "2006-01-02t15-04-05"

	// os
	OSTempFilePatten = "mysql-sidecar-temp-"
	ConnectTimeout   = 5 // second
)
