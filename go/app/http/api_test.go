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
package http

import (
	"context"
	"encoding/json"
	"errors"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/stream"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	test "gitee.com/opengauss/mysql-sidecar/go/util/tests"
	"golang.org/x/time/rate"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func init() {
	log.SetLevel(log.ERROR)
	log.DisableOutput(true)
}

type fakeProducer struct {
	data string
	fail error
}

func (f *fakeProducer) ProduceBackupStream(ctx context.Context) (io.ReadCloser, error) {
	return &fakeStream{Reader: strings.NewReader(f.data), fail: f.fail}, nil
}

type fakeStream struct {
	io.Reader
	fail error
}

func (f *fakeStream) Close() error {
	return f.fail
}

func newTestServer(t *testing.T, producer stream.Producer) (*Server, *httptest.Server) {
	s := NewServer("127.0.0.1:0", stream.NewServer(producer, stream.Options{}), "backup", "secret")
	s.Limiter = rate.NewLimiter(rate.Inf, 1)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string, user string, password string) (*http.Response, string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if user != "" {
		req.SetBasicAuth(user, password)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp, string(body), err
}

func TestKnownPaths(t *testing.T) {
	newTestServer(t, &fakeProducer{})
	pathsMap := make(map[string]bool)
	for _, path := range registerApiList {
		pathsMap[path] = true
	}
	test.S(t).ExpectTrue(pathsMap["/health,GET"])
	test.S(t).ExpectTrue(pathsMap["/api/status,GET"])
	test.S(t).ExpectTrue(pathsMap["/xbackup,GET"])
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &fakeProducer{})
	resp, body, err := get(t, ts.URL+"/health", "", "")
	test.S(t).ExpectNil(err)
	test.S(t).ExpectEquals(resp.StatusCode, http.StatusOK)
	test.S(t).ExpectEquals(body, "OK")
}

func TestBackup(t *testing.T) {
	s, ts := newTestServer(t, &fakeProducer{data: "xbstream-over-http"})

	resp, _, err := get(t, ts.URL+"/xbackup", "", "")
	test.S(t).ExpectNil(err)
	test.S(t).ExpectEquals(resp.StatusCode, http.StatusUnauthorized)

	resp, body, err := get(t, ts.URL+"/xbackup", "backup", "secret")
	test.S(t).ExpectNil(err)
	test.S(t).ExpectEquals(resp.StatusCode, http.StatusOK)
	test.S(t).ExpectEquals(resp.Header.Get("Content-Type"), "application/octet-stream")
	test.S(t).ExpectEquals(body, "xbstream-over-http")
	test.S(t).ExpectEquals(s.Stream.History().Aggregate().Count, 1)

	// slot is shared with raw backup port
	test.S(t).ExpectTrue(s.Stream.TryAcquire())
	resp, _, err = get(t, ts.URL+"/xbackup", "backup", "secret")
	test.S(t).ExpectNil(err)
	test.S(t).ExpectEquals(resp.StatusCode, http.StatusServiceUnavailable)
	s.Stream.Release()

	s.Limiter = rate.NewLimiter(rate.Limit(0.0001), 1)
	test.S(t).ExpectTrue(s.Limiter.Allow())
	resp, _, err = get(t, ts.URL+"/xbackup", "backup", "secret")
	test.S(t).ExpectNil(err)
	test.S(t).ExpectEquals(resp.StatusCode, http.StatusTooManyRequests)
}

func TestBackupOnce(t *testing.T) {
	streamServer := stream.NewServer(&fakeProducer{data: "only-once"}, stream.Options{Once: true})
	test.S(t).ExpectNil(streamServer.Listen("127.0.0.1:0"))
	served := make(chan error, 1)
	go func() { served <- streamServer.Serve() }()

	s := NewServer("127.0.0.1:0", streamServer, "backup", "secret")
	s.Limiter = rate.NewLimiter(rate.Inf, 1)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, body, err := get(t, ts.URL+"/xbackup", "backup", "secret")
	test.S(t).ExpectNil(err)
	test.S(t).ExpectEquals(resp.StatusCode, http.StatusOK)
	test.S(t).ExpectEquals(body, "only-once")

	// http session ends the raw port too
	test.S(t).ExpectNil(<-served)
	test.S(t).ExpectTrue(streamServer.Closed())

	resp, _, err = get(t, ts.URL+"/xbackup", "backup", "secret")
	test.S(t).ExpectNil(err)
	test.S(t).ExpectEquals(resp.StatusCode, http.StatusServiceUnavailable)
}

func TestBackupFailureAbortsBody(t *testing.T) {
	_, ts := newTestServer(t, &fakeProducer{data: "partial", fail: errors.New("xtrabackup: lost connection")})
	_, _, err := get(t, ts.URL+"/xbackup", "backup", "secret")
	test.S(t).ExpectNotNil(err)
}

func TestBackupThroughHTTPSource(t *testing.T) {
	_, ts := newTestServer(t, &fakeProducer{data: "clone-me"})
	host, portStr, err := net.SplitHostPort(ts.Listener.Addr().String())
	test.S(t).ExpectNil(err)
	port, err := strconv.Atoi(portStr)
	test.S(t).ExpectNil(err)

	source := &stream.HTTPSource{Port: port, User: "backup", Password: "secret"}
	rc, err := source.Fetch(context.Background(), host)
	test.S(t).ExpectNil(err)
	data, err := io.ReadAll(rc)
	test.S(t).ExpectNil(err)
	test.S(t).ExpectNil(rc.Close())
	test.S(t).ExpectEquals(string(data), "clone-me")
}

func TestStatus(t *testing.T) {
	_, ts := newTestServer(t, &fakeProducer{data: "x"})
	_, _, err := get(t, ts.URL+"/xbackup", "backup", "secret")
	test.S(t).ExpectNil(err)

	resp, body, err := get(t, ts.URL+"/api/status", "", "")
	test.S(t).ExpectNil(err)
	test.S(t).ExpectEquals(resp.StatusCode, http.StatusOK)
	var status struct {
		Code    string
		Details struct {
			Busy     bool
			Policy   string
			Sessions struct {
				Count int
			}
			Metrics map[string]interface{}
		}
	}
	test.S(t).ExpectNil(json.Unmarshal([]byte(body), &status))
	test.S(t).ExpectEquals(status.Code, "OK")
	test.S(t).ExpectFalse(status.Details.Busy)
	test.S(t).ExpectEquals(status.Details.Policy, "reject")
	test.S(t).ExpectEquals(status.Details.Sessions.Count, 1)
	test.S(t).ExpectNotNil(status.Details.Metrics["stream.session"])
}

func TestRunInWorkerPool(t *testing.T) {
	s := NewServer("127.0.0.1:0", stream.NewServer(&fakeProducer{}, stream.Options{}), "backup", "secret")
	wp := dtstruct.NewWorkerPool()
	test.S(t).ExpectNil(s.Run(wp))

	resp, body, err := get(t, "http://"+s.Addr().String()+"/health", "", "")
	test.S(t).ExpectNil(err)
	test.S(t).ExpectEquals(resp.StatusCode, http.StatusOK)
	test.S(t).ExpectEquals(body, "OK")

	wp.Exit(nil)
	test.S(t).ExpectNil(wp.WaitStop())
}
