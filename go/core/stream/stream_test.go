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
package stream

import (
	"context"
	"errors"
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"github.com/stretchr/testify/require"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func init() {
	log.DisableOutput(true)
}

// fakeProducer streams data, optionally waiting on gate before the first read
type fakeProducer struct {
	data   string
	fail   error
	gate   chan struct{}
	calls  int32
	active int32
	max    int32
}

func (f *fakeProducer) ProduceBackupStream(ctx context.Context) (io.ReadCloser, error) {
	atomic.AddInt32(&f.calls, 1)
	if n := atomic.AddInt32(&f.active, 1); n > atomic.LoadInt32(&f.max) {
		atomic.StoreInt32(&f.max, n)
	}
	return &fakeStream{f: f, r: strings.NewReader(f.data)}, nil
}

type fakeStream struct {
	f    *fakeProducer
	r    io.Reader
	once sync.Once
}

func (s *fakeStream) Read(p []byte) (int, error) {
	if s.f.gate != nil {
		s.once.Do(func() { <-s.f.gate })
	}
	return s.r.Read(p)
}

func (s *fakeStream) Close() error {
	atomic.AddInt32(&s.f.active, -1)
	return s.f.fail
}

func startServer(t *testing.T, producer Producer, opts Options) (*Server, int, chan error) {
	srv := NewServer(producer, opts)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close() })
	return srv, srv.Addr().(*net.TCPAddr).Port, served
}

func waitBusy(t *testing.T, srv *Server) {
	deadline := time.Now().Add(5 * time.Second)
	for !srv.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("session did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func fetch(t *testing.T, source *TCPSource) (string, error) {
	rc, err := source.Fetch(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	return string(data), err
}

func TestServeAndFetch(t *testing.T) {
	producer := &fakeProducer{data: strings.Repeat("xbstream", 4096)}
	srv, port, _ := startServer(t, producer, Options{})

	data, err := fetch(t, &TCPSource{Port: port, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, producer.data, data)

	agg := srv.History().Aggregate()
	require.Equal(t, 1, agg.Count)
	require.Equal(t, int64(len(producer.data)), agg.TotalBytes)
	require.False(t, agg.LastSessionFailed)
}

func TestServeCompressed(t *testing.T) {
	producer := &fakeProducer{data: strings.Repeat("0123456789", 1000)}
	_, port, _ := startServer(t, producer, Options{Compress: true})

	data, err := fetch(t, &TCPSource{Port: port, DialTimeout: time.Second, Compressed: true})
	require.NoError(t, err)
	require.Equal(t, producer.data, data)
}

func TestRejectSecondConsumer(t *testing.T) {
	producer := &fakeProducer{data: "backup", gate: make(chan struct{})}
	srv, port, _ := startServer(t, producer, Options{BusyPolicy: constant.StreamBusyPolicyReject})
	source := &TCPSource{Port: port, DialTimeout: time.Second}

	first := make(chan string)
	go func() {
		data, _ := fetch(t, source)
		first <- data
	}()
	waitBusy(t, srv)

	// second consumer is closed without data while first is served
	data, err := fetch(t, source)
	require.NoError(t, err)
	require.Equal(t, "", data)

	close(producer.gate)
	require.Equal(t, "backup", <-first)
	require.Equal(t, int32(1), atomic.LoadInt32(&producer.calls))
}

func TestQueueSecondConsumer(t *testing.T) {
	producer := &fakeProducer{data: "backup", gate: make(chan struct{})}
	srv, port, _ := startServer(t, producer, Options{BusyPolicy: constant.StreamBusyPolicyQueue})
	source := &TCPSource{Port: port, DialTimeout: time.Second}

	results := make(chan string, 2)
	go func() {
		data, _ := fetch(t, source)
		results <- data
	}()
	waitBusy(t, srv)
	go func() {
		data, _ := fetch(t, source)
		results <- data
	}()

	close(producer.gate)
	require.Equal(t, "backup", <-results)
	require.Equal(t, "backup", <-results)
	require.Equal(t, int32(2), atomic.LoadInt32(&producer.calls))
	require.Equal(t, int32(1), atomic.LoadInt32(&producer.max))
}

func TestServeOnce(t *testing.T) {
	producer := &fakeProducer{data: "one-shot"}
	_, port, served := startServer(t, producer, Options{Once: true})

	data, err := fetch(t, &TCPSource{Port: port, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "one-shot", data)

	select {
	case err = <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after one session")
	}
}

func TestProducerFailureTruncatesStream(t *testing.T) {
	producer := &fakeProducer{data: "partial", fail: errors.New("xtrabackup: lost connection")}
	_, port, served := startServer(t, producer, Options{Once: true})

	_, err := fetch(t, &TCPSource{Port: port, DialTimeout: time.Second})
	require.Error(t, err)
	var te *common.TransportError
	require.True(t, errors.As(err, &te))

	require.Error(t, <-served)
}

func TestFetchUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	_, err = (&TCPSource{Port: port, DialTimeout: time.Second}).Fetch(context.Background(), "127.0.0.1")
	var te *common.TransportError
	require.True(t, errors.As(err, &te))
	require.True(t, common.IsRetryable(err))
}

func TestHTTPSource(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "backup" || pass != "secret" || r.URL.Path != constant.HelperBackupPath {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("http-stream"))
	}))
	defer ts.Close()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	rc, err := (&HTTPSource{Port: port, User: "backup", Password: "secret"}).Fetch(context.Background(), host)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "http-stream", string(data))

	_, err = (&HTTPSource{Port: port, User: "backup", Password: "wrong"}).Fetch(context.Background(), host)
	var te *common.TransportError
	require.True(t, errors.As(err, &te))
}
