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
package identity

import (
	"errors"
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"gitee.com/opengauss/mysql-sidecar/go/util/tests"
	"testing"
)

func TestResolveOrdinal(t *testing.T) {
	for _, k := range []int{0, 1, 2, 9, 10, 125} {
		node, err := Resolve(fmt.Sprintf("cluster-mysql-%d", k), "mysql.default", 100)
		tests.S(t).ExpectNil(err)
		tests.S(t).ExpectEquals(node.Ordinal, k)
		tests.S(t).ExpectEquals(node.ServerID, 100+k)
		tests.S(t).ExpectEquals(node.IsPrimary(), k == 0)
		tests.S(t).ExpectEquals(node.BaseName, "cluster-mysql")
	}
}

func TestResolvePeers(t *testing.T) {

	// replica clones from previous ordinal and replicates from ordinal 0
	node, err := Resolve("cluster-mysql-2", "mysql.default", 100)
	tests.S(t).ExpectNil(err)
	tests.S(t).ExpectEquals(node.Role, dtstruct.RoleReplica)
	tests.S(t).ExpectEquals(node.SourceOrdinal, 1)
	tests.S(t).ExpectEquals(node.SourceHostAddress, "cluster-mysql-1.mysql.default")
	tests.S(t).ExpectEquals(node.PrimaryHostAddress, "cluster-mysql-0.mysql.default")
	tests.S(t).ExpectEquals(node.ReportHost(), "cluster-mysql-2.mysql.default")

	// primary has no source
	node, err = Resolve("cluster-mysql-0.mysql.default.svc", "", 100)
	tests.S(t).ExpectNil(err)
	tests.S(t).ExpectEquals(node.Role, dtstruct.RolePrimary)
	tests.S(t).ExpectEquals(node.SourceOrdinal, -1)
	tests.S(t).ExpectEquals(node.SourceHostAddress, "")
	tests.S(t).ExpectEquals(node.PrimaryHostAddress, "cluster-mysql-0")
}

func TestResolveMalformed(t *testing.T) {
	for _, hostname := range []string{"", "mysql", "mysql-", "mysql-a", "-", "mysql-1a", "mysql-99999999999999999999999"} {
		_, err := Resolve(hostname, "", 100)
		tests.S(t).ExpectNotNil(err)
		var mhe *common.MalformedHostnameError
		tests.S(t).ExpectTrue(errors.As(err, &mhe))
		tests.S(t).ExpectFalse(common.IsRetryable(err))
	}
}

func TestResolveLocalOverride(t *testing.T) {
	node, err := ResolveLocal("db-3", "svc", 200)
	tests.S(t).ExpectNil(err)
	tests.S(t).ExpectEquals(node.ServerID, 203)
	tests.S(t).ExpectEquals(node.SourceHostAddress, "db-2.svc")
}
