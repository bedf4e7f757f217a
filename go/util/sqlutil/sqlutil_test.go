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
	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestQueryRowsMap(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("show master status").WillReturnRows(
		sqlmock.NewRows([]string{"File", "Position", "Executed_Gtid_Set"}).AddRow("mysql-bin.000003", "154", nil))

	var rows []RowMap
	err = QueryRowsMap(context.Background(), db, "show master status", func(m RowMap) error {
		rows = append(rows, m)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "mysql-bin.000003", rows[0].GetString("File"))
	require.Equal(t, int64(154), rows[0].GetInt64("Position"))
	require.Equal(t, "", rows[0].GetString("Executed_Gtid_Set"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecNoPrepare(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("start slave").WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = ExecNoPrepare(context.Background(), db, "start slave")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGenericDB(t *testing.T) {
	dsn := "user:pass@tcp(127.0.0.1:3306)/?timeout=1s"
	db1, fromCache, err := GetGenericDB("mysql", dsn)
	require.NoError(t, err)
	require.False(t, fromCache)

	db2, fromCache, err := GetGenericDB("mysql", dsn)
	require.NoError(t, err)
	require.True(t, fromCache)
	require.Same(t, db1, db2)

	ForgetDB(dsn)
	_, fromCache, err = GetGenericDB("mysql", dsn)
	require.NoError(t, err)
	require.False(t, fromCache)
	ForgetDB(dsn)
}

func TestRedact(t *testing.T) {
	require.Equal(t, "CHANGE MASTER TO MASTER_PASSWORD='****'", Redact("CHANGE MASTER TO MASTER_PASSWORD='s3cret'", "s3cret", ""))
}
