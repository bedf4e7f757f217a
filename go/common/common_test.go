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
package common

import (
	"errors"
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/util/tests"
	"testing"
)

func TestRegex(t *testing.T) {
	tests.S(t).ExpectTrue(HostnameOrdinalRegexp.MatchString("cluster-mysql-0"))
	tests.S(t).ExpectTrue(HostnameOrdinalRegexp.MatchString("a-12"))
	tests.S(t).ExpectFalse(HostnameOrdinalRegexp.MatchString("cluster-mysql"))
	tests.S(t).ExpectFalse(HostnameOrdinalRegexp.MatchString("-3"))
	tests.S(t).ExpectFalse(HostnameOrdinalRegexp.MatchString("mysql0"))

	sub := BucketURIRegexp.FindStringSubmatch("s3://bucket/path/x.gz")
	tests.S(t).ExpectEquals(len(sub), 3)
	tests.S(t).ExpectEquals(sub[1], "s3")
	tests.S(t).ExpectEquals(sub[2], "bucket/path/x.gz")
}

func TestIsRetryable(t *testing.T) {
	tests.S(t).ExpectFalse(IsRetryable(nil))
	tests.S(t).ExpectFalse(IsRetryable(&MalformedHostnameError{Hostname: "mysql"}))
	tests.S(t).ExpectFalse(IsRetryable(errors.New("other")))
	tests.S(t).ExpectTrue(IsRetryable(&CloneError{Stage: StagePrepare, Cause: errors.New("exit 1")}))
	tests.S(t).ExpectTrue(IsRetryable(fmt.Errorf("wrapped: %w", &TransportError{Address: "h:3307", Cause: errors.New("refused")})))
	tests.S(t).ExpectTrue(IsRetryable(&ReplicationConfigError{Statement: "start slave", Cause: errors.New("1045")}))

	// clone error keeps its transport cause reachable
	cause := &TransportError{Address: "h:3307", Cause: errors.New("reset")}
	var te *TransportError
	tests.S(t).ExpectTrue(errors.As(&CloneError{Stage: StageFetch, Cause: cause}, &te))
	tests.S(t).ExpectEquals(te.Address, "h:3307")
}
