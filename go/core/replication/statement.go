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
package replication

import (
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"gitee.com/opengauss/mysql-sidecar/go/util"
)

const (
	disableBinlog = "SET @@SESSION.SQL_LOG_BIN = 0"
	enableBinlog  = "SET @@SESSION.SQL_LOG_BIN = 1"
	stopSlave     = "STOP SLAVE"
	startSlave    = "START SLAVE"
	resetMaster   = "RESET MASTER"

	// privileges needed to take backup from and replicate from a node
	replicationPrivileges = "SELECT, PROCESS, RELOAD, LOCK TABLES, REPLICATION CLIENT, REPLICATION SLAVE"
)

// start slave again after a failed START SLAVE, see https://bugs.mysql.com/bug.php?id=83713
var startSlaveWorkaround = []string{
	"RESET SLAVE",
	"START SLAVE IO_THREAD",
	"STOP SLAVE IO_THREAD",
	"RESET SLAVE",
	startSlave,
}

func account(user string) string {
	return fmt.Sprintf("%s@'%%'", util.QuoteLiteral(user))
}

// replicationUserStatements create replication account reachable from any host, re-run updates its password.
// Statements run with binlog disabled so they are not replicated.
func replicationUserStatements(user string, password string) []string {
	return []string{
		disableBinlog,
		fmt.Sprintf("CREATE USER IF NOT EXISTS %s IDENTIFIED BY %s", account(user), util.QuoteLiteral(password)),
		fmt.Sprintf("ALTER USER %s IDENTIFIED BY %s", account(user), util.QuoteLiteral(password)),
		fmt.Sprintf("GRANT %s ON *.* TO %s", replicationPrivileges, account(user)),
		enableBinlog,
	}
}

// changeMasterStatements point replica at primary. STOP SLAVE comes first so the directive can be re-issued.
func changeMasterStatements(host string, port int, user string, password string, connectRetry int, position dtstruct.ReplicationPosition) []string {
	statements := []string{stopSlave}
	directive := fmt.Sprintf("CHANGE MASTER TO MASTER_HOST=%s, MASTER_PORT=%d, MASTER_USER=%s, MASTER_PASSWORD=%s, MASTER_CONNECT_RETRY=%d",
		util.QuoteLiteral(host), port, util.QuoteLiteral(user), util.QuoteLiteral(password), connectRetry)
	switch position.Kind {
	case dtstruct.PositionAutoPosition:
		if position.GTIDSet != "" {
			statements = append(statements, resetMaster, fmt.Sprintf("SET GLOBAL gtid_purged=%s", util.QuoteLiteral(position.GTIDSet)))
		}
		directive += ", MASTER_AUTO_POSITION=1"
	case dtstruct.PositionCoordinates:
		directive += fmt.Sprintf(", MASTER_AUTO_POSITION=0, MASTER_LOG_FILE=%s, MASTER_LOG_POS=%d",
			util.QuoteLiteral(position.Coordinates.LogFile), position.Coordinates.LogPos)
	}
	return append(statements, directive)
}

// markDoneStatements record the completed bootstrap in a csv table, whose file marks data dir as populated
func markDoneStatements(hostname string) []string {
	table := fmt.Sprintf("%s.%s", constant.OperatorDatabase, constant.OperatorInitTable)
	return []string{
		disableBinlog,
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", constant.OperatorDatabase),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (name varchar(255) NOT NULL, value varchar(255) NOT NULL, inserted_at datetime NOT NULL) ENGINE=csv", table),
		fmt.Sprintf("INSERT INTO %s VALUES (%s, %s, now())", table, util.QuoteLiteral(constant.OperatorInitKey), util.QuoteLiteral(hostname)),
		enableBinlog,
	}
}

// writableStatements let the admin session write the init marker on a node a previous run left read only.
// Clients other than super users stay locked out until the role is applied.
var writableStatements = []string{
	"SET GLOBAL READ_ONLY = 1",
	"SET GLOBAL SUPER_READ_ONLY = 0",
}

// readOnlyStatement primary accepts writes, replica only applies the change stream
func readOnlyStatement(role dtstruct.Role) string {
	if role == dtstruct.RolePrimary {
		return "SET GLOBAL READ_ONLY = 0"
	}
	return "SET GLOBAL SUPER_READ_ONLY = 1"
}
