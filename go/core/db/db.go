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
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/metric"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"gitee.com/opengauss/mysql-sidecar/go/util/sqlutil"
	"github.com/go-ini/ini"
	"github.com/go-sql-driver/mysql"
	"net"
	"strconv"
	"sync"
	"time"
)

// ClientConfig is the [client] section of the admin client config file
type ClientConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Socket   string
}

// ReadClientConfig load admin client config file written by init-configs
func ReadClientConfig(path string) (*ClientConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, log.Errorf("can not load client config %s, error:%s", path, err)
	}
	client := cfg.Section(constant.MySQLClientSection)
	return &ClientConfig{
		Host:     client.Key("host").MustString(constant.DefaultTestHost),
		Port:     client.Key("port").MustInt(constant.MySQLPort),
		User:     client.Key("user").String(),
		Password: client.Key("password").String(),
		Socket:   client.Key("socket").String(),
	}, nil
}

// DSN build data source name for the mysql driver
func (c *ClientConfig) DSN(timeoutSeconds int) string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	if c.Socket != "" {
		cfg.Net = "unix"
		cfg.Addr = c.Socket
	} else {
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	cfg.Timeout = time.Duration(timeoutSeconds) * time.Second
	cfg.ReadTimeout = constant.MySQLReadTimeout * time.Second
	cfg.InterpolateParams = true
	return cfg.FormatDSN()
}

// Instance is the admin client of local mysql. Statements run on one dedicated session so that
// session variables such as sql_log_bin apply to the statements after them.
type Instance struct {
	dsn string
	db  *sql.DB

	mu   sync.Mutex
	conn *sql.Conn
}

// Open get admin client of instance described by client config
func Open(cfg *ClientConfig, timeoutSeconds int) (*Instance, error) {
	dsn := cfg.DSN(timeoutSeconds)
	db, fromCache, err := sqlutil.GetGenericDB(constant.MySQLDriverName, dsn)
	if err != nil {
		return nil, log.Errore(err)
	}
	if !fromCache {
		db.SetMaxOpenConns(constant.MySQLMaxPoolConnections)
		db.SetMaxIdleConns(constant.MySQLMaxPoolConnections)
	}
	return &Instance{dsn: dsn, db: db}, nil
}

// NewInstance wrap an opened database handle
func NewInstance(db *sql.DB) *Instance {
	return &Instance{db: db}
}

// Ping run the liveness query
func (i *Instance) Ping(ctx context.Context) error {
	return sqlutil.QueryRowsMap(ctx, i.db, constant.MySQLLivenessQuery, func(sqlutil.RowMap) error { return nil })
}

// session return the dedicated connection, it is created on first use
func (i *Instance) session(ctx context.Context) (*sql.Conn, error) {
	if i.conn != nil {
		return i.conn, nil
	}
	conn, err := i.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	i.conn = conn
	return conn, nil
}

// Exec run statement on the dedicated session
func (i *Instance) Exec(ctx context.Context, query string, args ...interface{}) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	conn, err := i.session(ctx)
	if err != nil {
		return err
	}
	if _, err = sqlutil.ExecNoPrepare(ctx, conn, query, args...); err != nil && errors.Is(err, driver.ErrBadConn) {
		// session variables are lost with the connection, next statement gets a new session
		_ = conn.Close()
		i.conn = nil
	}
	return err
}

// MasterStatus return current binlog coordinates and executed gtid set, coordinates is nil if binlog is disabled
func (i *Instance) MasterStatus(ctx context.Context) (*dtstruct.LogCoordinates, string, error) {
	var coordinates *dtstruct.LogCoordinates
	gtidSet := ""
	err := sqlutil.QueryRowsMap(ctx, i.db, "show master status", func(m sqlutil.RowMap) error {
		coordinates = &dtstruct.LogCoordinates{LogFile: m.GetString("File"), LogPos: m.GetInt64("Position")}
		gtidSet = m.GetString("Executed_Gtid_Set")
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return coordinates, gtidSet, nil
}

// Close release the dedicated session and drop the cached handle
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	var err error
	if i.conn != nil {
		err = i.conn.Close()
		i.conn = nil
	}
	if i.dsn != "" {
		sqlutil.ForgetDB(i.dsn)
	}
	return err
}

// ErrorNumber return the server error number of err, 0 if it is not a server error
func ErrorNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// WaitForReady poll instance with liveness query until it answers. Zero timeout waits until ctx is done,
// which is normally never: the process is expected to be killed by its supervisor instead.
func WaitForReady(ctx context.Context, client dtstruct.InstanceClient, interval time.Duration, timeout time.Duration) error {
	if interval <= 0 {
		interval = constant.ReadinessPollInterval * time.Millisecond
	}
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		metric.Inc(constant.MetricReadinessPoll)
		err := client.Ping(ctx)
		if err == nil {
			log.Infof("instance is ready after %d attempt(s)", attempt)
			return nil
		}
		if attempt == 1 || ErrorNumber(err) != 0 {
			log.Warning("instance not ready yet, error:%s", err)
		} else {
			log.Debug("instance not ready yet, attempt:%d, error:%s", attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("instance not ready after %s: %w", timeout, err)
		case <-ticker.C:
		}
	}
}
