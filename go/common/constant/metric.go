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

const (
	// clone
	MetricCloneAttempt = "clone.attempt"
	MetricCloneSkip    = "clone.skip"
	MetricCloneFail    = "clone.fail"
	MetricCloneLatency = "clone.latency"

	// stream
	MetricStreamSession  = "stream.session"
	MetricStreamReject   = "stream.reject"
	MetricStreamFail     = "stream.fail"
	MetricStreamBytes    = "stream.bytes"
	MetricStreamDuration = "stream.duration"

	// replication
	MetricReplicationConfigure = "replication.configure"
	MetricReplicationSkip      = "replication.skip"
	MetricReplicationFail      = "replication.fail"
	MetricReadinessPoll        = "readiness.poll"

	// bootstrap
	MetricBootstrapRun  = "bootstrap.run"
	MetricBootstrapFail = "bootstrap.fail"

	// session history kept for aggregation
	SessionHistorySize = 64
)
