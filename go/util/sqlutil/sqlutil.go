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
package sqlutil

import (
	"context"
	"database/sql"
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"github.com/patrickmn/go-cache"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RowMap represents one row in a result set. Its objective is to allow
// for easy, typed getters by column name.
type RowMap map[string]CellData

// CellData is the result of a single (atomic) column in a single row
type CellData sql.NullString

func (this *CellData) NullString() *sql.NullString {
	return (*sql.NullString)(this)
}

func (this *RowMap) GetString(key string) string {
	return (*this)[key].String
}

func (this *RowMap) GetInt64(key string) int64 {
	res, _ := strconv.ParseInt(this.GetString(key), 10, 0)
	return res
}

// Queryer is satisfied by *sql.DB and *sql.Conn
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Execer is satisfied by *sql.DB and *sql.Conn
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Args wraps arguments of a statement
func Args(args ...interface{}) []interface{} {
	return args
}

// knownDBs caches opened handles by dsn, entries idle longer than expiration are closed
var knownDBs = cache.New(30*time.Minute, time.Minute)
var knownDBsMutex = &sync.Mutex{}

func init() {
	knownDBs.OnEvicted(func(dsn string, value interface{}) {
		if db, ok := value.(*sql.DB); ok {
			_ = db.Close()
		}
	})
}

// GetGenericDB returns a DB instance based on driver name and data source name,
// the instance is cached and reused. The bool result indicates whether it came from cache.
func GetGenericDB(driverName, dataSourceName string) (*sql.DB, bool, error) {
	knownDBsMutex.Lock()
	defer knownDBsMutex.Unlock()

	if value, exists := knownDBs.Get(dataSourceName); exists {
		knownDBs.SetDefault(dataSourceName, value)
		return value.(*sql.DB), true, nil
	}
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, false, err
	}
	knownDBs.SetDefault(dataSourceName, db)
	return db, false, nil
}

// ForgetDB drop cached handle of data source and close it
func ForgetDB(dataSourceName string) {
	knownDBsMutex.Lock()
	defer knownDBsMutex.Unlock()
	knownDBs.Delete(dataSourceName)
}

// RowToArray is a convenience function, typically not called directly, which maps a
// single read database row into a NullString
func RowToArray(rows *sql.Rows, columns []string) ([]CellData, error) {
	buff := make([]interface{}, len(columns))
	data := make([]CellData, len(columns))
	for i := range buff {
		buff[i] = data[i].NullString()
	}
	err := rows.Scan(buff...)
	return data, err
}

// ScanRowsToMaps is a convenience function, typically not called directly, which maps rows
// read from the database into RowMap objects.
func ScanRowsToMaps(rows *sql.Rows, onRow func(RowMap) error) error {
	columns, _ := rows.Columns()
	for rows.Next() {
		data, err := RowToArray(rows, columns)
		if err != nil {
			return err
		}
		m := make(map[string]CellData)
		for i, columnName := range columns {
			m[columnName] = data[i]
		}
		if err = onRow(m); err != nil {
			return err
		}
	}
	return rows.Err()
}

// QueryRowsMap is a convenience function allowing querying a result set while providing a callback
// function activated per read row.
func QueryRowsMap(ctx context.Context, db Queryer, query string, onRow func(RowMap) error, args ...interface{}) (err error) {
	defer func() {
		if derr := recover(); derr != nil {
			err = fmt.Errorf("QueryRowsMap unexpected error: %+v", derr)
		}
	}()

	var rows *sql.Rows
	rows, err = db.QueryContext(ctx, query, args...)
	if err != nil {
		return log.Errore(err)
	}
	defer rows.Close()
	return ScanRowsToMaps(rows, onRow)
}

// ExecNoPrepare executes given query using given args on given DB, without using prepared statements.
func ExecNoPrepare(ctx context.Context, db Execer, query string, args ...interface{}) (res sql.Result, err error) {
	defer func() {
		if derr := recover(); derr != nil {
			err = fmt.Errorf("ExecNoPrepare unexpected error: %+v", derr)
		}
	}()
	return db.ExecContext(ctx, query, args...)
}

// Redact mask password in statement before it is logged
func Redact(statement string, secrets ...string) string {
	for _, secret := range secrets {
		if secret != "" {
			statement = strings.ReplaceAll(statement, secret, "****")
		}
	}
	return statement
}
