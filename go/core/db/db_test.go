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
package db

import (
	"context"
	"errors"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func init() {
	log.DisableOutput(true)
}

func TestReadClientConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.cnf")
	require.NoError(t, os.WriteFile(path, []byte("[client]\nhost = 10.0.0.5\nport = 3316\nuser = sidecar\npassword = p@ss\n"), 0600))

	cfg, err := ReadClientConfig(path)
	require.NoError(t, err)
	require.Equal(t, &ClientConfig{Host: "10.0.0.5", Port: 3316, User: "sidecar", Password: "p@ss"}, cfg)

	dsn, err := mysql.ParseDSN(cfg.DSN(5))
	require.NoError(t, err)
	require.Equal(t, "tcp", dsn.Net)
	require.Equal(t, "10.0.0.5:3316", dsn.Addr)
	require.Equal(t, "p@ss", dsn.Passwd)
	require.Equal(t, 5*time.Second, dsn.Timeout)
	require.True(t, dsn.InterpolateParams)

	// socket takes precedence over host
	cfg.Socket = "/var/run/mysqld/mysqld.sock"
	dsn, err = mysql.ParseDSN(cfg.DSN(5))
	require.NoError(t, err)
	require.Equal(t, "unix", dsn.Net)

	_, err = ReadClientConfig(filepath.Join(t.TempDir(), "missing.cnf"))
	require.Error(t, err)
}

func TestInstanceSession(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	inst := NewInstance(sqlDB)

	mock.ExpectQuery("select 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow("1"))
	mock.ExpectExec("SET @@SESSION.SQL_LOG_BIN = 0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("GRANT REPLICATION SLAVE ON *.* TO ?@'%'").WithArgs("repl").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("show master status").WillReturnRows(
		sqlmock.NewRows([]string{"File", "Position", "Executed_Gtid_Set"}).AddRow("mysql-bin.000001", "154", "uuid:1-3"))

	ctx := context.Background()
	require.NoError(t, inst.Ping(ctx))
	require.NoError(t, inst.Exec(ctx, "SET @@SESSION.SQL_LOG_BIN = 0"))
	require.NoError(t, inst.Exec(ctx, "GRANT REPLICATION SLAVE ON *.* TO ?@'%'", "repl"))
	coordinates, gtidSet, err := inst.MasterStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, &dtstruct.LogCoordinates{LogFile: "mysql-bin.000001", LogPos: 154}, coordinates)
	require.Equal(t, "uuid:1-3", gtidSet)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NoError(t, inst.Close())
}

func TestMasterStatusBinlogDisabled(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer sqlDB.Close()
	mock.ExpectQuery("show master status").WillReturnRows(sqlmock.NewRows([]string{"File", "Position"}))

	coordinates, _, err := NewInstance(sqlDB).MasterStatus(context.Background())
	require.NoError(t, err)
	require.Nil(t, coordinates)
}

func TestErrorNumber(t *testing.T) {
	require.Equal(t, uint16(1045), ErrorNumber(&mysql.MySQLError{Number: 1045}))
	require.Equal(t, uint16(0), ErrorNumber(errors.New("dial tcp: connection refused")))
}

// pingClient fails the first n pings
type pingClient struct {
	dtstruct.InstanceClient
	fail  int32
	calls int32
}

func (c *pingClient) Ping(ctx context.Context) error {
	if atomic.AddInt32(&c.calls, 1) <= c.fail {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForReady(t *testing.T) {
	client := &pingClient{fail: 3}
	require.NoError(t, WaitForReady(context.Background(), client, time.Millisecond, 0))
	require.Equal(t, int32(4), atomic.LoadInt32(&client.calls))
}

func TestWaitForReadyDeadline(t *testing.T) {
	client := &pingClient{fail: 1 << 30}
	err := WaitForReady(context.Background(), client, time.Millisecond, 20*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")

	// cancelled by context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, WaitForReady(ctx, client, time.Millisecond, 0), context.Canceled)
}
