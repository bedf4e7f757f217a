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
package bootstrap

import (
	"context"
	"errors"
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/core/clone"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/position"
	"gitee.com/opengauss/mysql-sidecar/go/core/replication"
	"gitee.com/opengauss/mysql-sidecar/go/core/stream"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"gitee.com/opengauss/mysql-sidecar/go/util/tests"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func init() {
	log.DisableOutput(true)
}

// fakeTool stands in for xtrabackup: streams fixed bytes, extraction writes the replica metadata file
type fakeTool struct {
	backup    string
	slaveInfo string
	extracted string
	prepared  bool
}

func (f *fakeTool) ProduceBackupStream(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.backup)), nil
}

func (f *fakeTool) ExtractStream(ctx context.Context, s io.Reader, dataDir string) error {
	data, err := io.ReadAll(s)
	if err != nil {
		return err
	}
	f.extracted = string(data)
	return os.WriteFile(filepath.Join(dataDir, "xtrabackup_slave_info"), []byte(f.slaveInfo), 0644)
}

func (f *fakeTool) Prepare(ctx context.Context, dataDir string) error {
	f.prepared = true
	return nil
}

// localSource fetch from a peer listening on loopback whatever host is asked for
type localSource struct {
	source *stream.TCPSource
	host   string
}

func (l *localSource) Fetch(ctx context.Context, host string) (io.ReadCloser, error) {
	l.host = host
	return l.source.Fetch(ctx, "127.0.0.1")
}

type fakeClient struct {
	mu         sync.Mutex
	statements []string
	status     *dtstruct.LogCoordinates
}

func (f *fakeClient) Ping(ctx context.Context) error {
	return nil
}

func (f *fakeClient) Exec(ctx context.Context, query string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, query)
	return nil
}

func (f *fakeClient) MasterStatus(ctx context.Context) (*dtstruct.LogCoordinates, string, error) {
	return f.status, "", nil
}

func (f *fakeClient) Close() error {
	return nil
}

func newOrchestrator(t *testing.T, hostname string, tool dtstruct.BackupTool, source dtstruct.StreamSource, client dtstruct.InstanceClient) *Orchestrator {
	dataDir := t.TempDir()
	configurator := replication.NewConfigurator(client, "repl", "s3cret")
	configurator.PollInterval = time.Millisecond
	extractor := position.NewExtractor(dataDir, false, client)
	extractor.PollInterval = time.Millisecond
	return &Orchestrator{
		Hostname:       hostname,
		Domain:         "db-mysql.default",
		ServerIDOffset: 100,
		Clone:          &clone.Engine{DataDir: dataDir, Tool: tool, Source: source},
		Extractor:      extractor,
		Configurator:   configurator,
	}
}

func TestFreshReplicaClonesFromPrimary(t *testing.T) {
	tool := &fakeTool{backup: "xbstream-bytes", slaveInfo: "CHANGE MASTER TO MASTER_LOG_FILE='bin.000009', MASTER_LOG_POS=154"}
	server := stream.NewServer(tool, stream.Options{})
	tests.S(t).ExpectNil(server.Listen("127.0.0.1:0"))
	go func() { _ = server.Serve() }()
	defer server.Close()

	source := &localSource{source: &stream.TCPSource{Port: server.Addr().(*net.TCPAddr).Port, DialTimeout: time.Second}}
	client := &fakeClient{}
	o := newOrchestrator(t, "db-mysql-1", tool, source, client)

	result, err := o.Run(context.Background())
	tests.S(t).ExpectNil(err)
	tests.S(t).ExpectEquals(result.Node.Ordinal, 1)
	tests.S(t).ExpectEquals(result.Node.ServerID, 101)
	tests.S(t).ExpectEquals(result.Action, clone.ActionPeer)
	tests.S(t).ExpectEquals(source.host, "db-mysql-0.db-mysql.default")
	tests.S(t).ExpectEquals(tool.extracted, "xbstream-bytes")
	tests.S(t).ExpectTrue(tool.prepared)
	tests.S(t).ExpectEquals(result.Position.Kind, dtstruct.PositionCoordinates)
	tests.S(t).ExpectEquals(result.Position.Coordinates, dtstruct.LogCoordinates{LogFile: "bin.000009", LogPos: 154})

	all := strings.Join(client.statements, "\n")
	tests.S(t).ExpectContains(all, "MASTER_HOST='db-mysql-0.db-mysql.default'")
	tests.S(t).ExpectContains(all, "MASTER_LOG_FILE='bin.000009', MASTER_LOG_POS=154")
	tests.S(t).ExpectContains(all, "START SLAVE")
	tests.S(t).ExpectNotContains(all, "CREATE USER")
	tests.S(t).ExpectTrue(result.Latency[stageTotal] >= result.Latency[StageClone])

	// metadata used once, a restart keeps replication where it is
	_, err = os.Stat(filepath.Join(o.Clone.DataDir, "xtrabackup_slave_info.applied"))
	tests.S(t).ExpectNil(err)
	tests.S(t).ExpectNil(os.Mkdir(filepath.Join(o.Clone.DataDir, "mysql"), 0750))
	executed := len(client.statements)
	result, err = o.Run(context.Background())
	tests.S(t).ExpectNil(err)
	tests.S(t).ExpectEquals(result.State, clone.DataDirPopulated)
	tests.S(t).ExpectTrue(result.Position.IsUnknown())
	tests.S(t).ExpectEquals(len(client.statements), executed)
}

func TestFreshPrimaryWithoutSeed(t *testing.T) {
	tool := &fakeTool{}
	client := &fakeClient{status: &dtstruct.LogCoordinates{LogFile: "bin.000001", LogPos: 4}}
	o := newOrchestrator(t, "db-mysql-0", tool, nil, client)

	result, err := o.Run(context.Background())
	tests.S(t).ExpectNil(err)
	tests.S(t).ExpectEquals(result.Node.Role, dtstruct.RolePrimary)
	tests.S(t).ExpectEquals(result.Action, clone.ActionNone)
	tests.S(t).ExpectFalse(tool.prepared)

	all := strings.Join(client.statements, "\n")
	tests.S(t).ExpectContains(all, "CREATE USER IF NOT EXISTS 'repl'@'%'")
	tests.S(t).ExpectContains(all, "SET GLOBAL READ_ONLY = 0")
	tests.S(t).ExpectNotContains(all, "START SLAVE")
	tests.S(t).ExpectNotContains(all, "CHANGE MASTER")
}

func TestPopulatedReplicaKeepsReplicationState(t *testing.T) {
	tool := &fakeTool{}
	client := &fakeClient{}
	source := &localSource{}
	o := newOrchestrator(t, "db-mysql-2", tool, source, client)
	tests.S(t).ExpectNil(os.Mkdir(filepath.Join(o.Clone.DataDir, "mysql"), 0750))

	result, err := o.Run(context.Background())
	tests.S(t).ExpectNil(err)
	tests.S(t).ExpectEquals(result.State, clone.DataDirPopulated)
	tests.S(t).ExpectEquals(source.host, "")
	tests.S(t).ExpectTrue(result.Position.IsUnknown())
	tests.S(t).ExpectEquals(len(client.statements), 0)
}

func TestMalformedHostname(t *testing.T) {
	client := &fakeClient{}
	o := newOrchestrator(t, "mysql", &fakeTool{}, nil, client)

	result, err := o.Run(context.Background())
	tests.S(t).ExpectNil(result)
	var mhe *common.MalformedHostnameError
	tests.S(t).ExpectTrue(errors.As(err, &mhe))
	tests.S(t).ExpectFalse(common.IsRetryable(err))
	tests.S(t).ExpectEquals(len(client.statements), 0)
}

func TestPeerUnreachableAbortsRun(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	tests.S(t).ExpectNil(err)
	port := listener.Addr().(*net.TCPAddr).Port
	tests.S(t).ExpectNil(listener.Close())

	client := &fakeClient{}
	source := &localSource{source: &stream.TCPSource{Port: port, DialTimeout: time.Second}}
	o := newOrchestrator(t, "db-mysql-1", &fakeTool{}, source, client)

	_, err = o.Run(context.Background())
	var te *common.TransportError
	tests.S(t).ExpectTrue(errors.As(err, &te))
	tests.S(t).ExpectTrue(common.IsRetryable(err))
	tests.S(t).ExpectEquals(len(client.statements), 0)
}

func TestBusyPeerAbortsRun(t *testing.T) {
	tool := &fakeTool{backup: "xbstream-bytes"}
	server := stream.NewServer(tool, stream.Options{})
	tests.S(t).ExpectNil(server.Listen("127.0.0.1:0"))
	go func() { _ = server.Serve() }()
	defer server.Close()

	// another consumer holds the only session
	tests.S(t).ExpectTrue(server.TryAcquire())
	defer server.Release()

	client := &fakeClient{}
	source := &localSource{source: &stream.TCPSource{Port: server.Addr().(*net.TCPAddr).Port, DialTimeout: time.Second}}
	o := newOrchestrator(t, "db-mysql-1", tool, source, client)

	result, err := o.Run(context.Background())
	tests.S(t).ExpectNil(result)
	var te *common.TransportError
	tests.S(t).ExpectTrue(errors.As(err, &te))
	tests.S(t).ExpectTrue(errors.Is(err, common.EmptyStreamError))
	tests.S(t).ExpectTrue(common.IsRetryable(err))
	tests.S(t).ExpectFalse(tool.prepared)
	tests.S(t).ExpectEquals(len(client.statements), 0)
}
