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
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/backup"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// TCPSource fetch backup stream from the raw backup port of a peer
type TCPSource struct {
	Port        int
	DialTimeout time.Duration
	Compressed  bool // stream is gzip on the wire
}

// Fetch connect to peer and return its backup stream. Connection failure is a TransportError and is
// retryable by restarting the bootstrap, it is not retried here.
func (c *TCPSource) Fetch(ctx context.Context, host string) (io.ReadCloser, error) {
	address := net.JoinHostPort(host, strconv.Itoa(c.Port))
	log.Infof("fetch backup stream from %s", address)
	dialer := &net.Dialer{Timeout: c.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &common.TransportError{Address: address, Cause: err}
	}
	return wrap(&transportReader{ReadCloser: conn, address: address}, c.Compressed)
}

// HTTPSource fetch backup stream from the backup endpoint of the helper http server of a peer
type HTTPSource struct {
	Port       int
	User       string
	Password   string
	Compressed bool
	Client     *http.Client
}

// Fetch request backup stream from peer
func (c *HTTPSource) Fetch(ctx context.Context, host string) (io.ReadCloser, error) {
	address := net.JoinHostPort(host, strconv.Itoa(c.Port))
	url := fmt.Sprintf("http://%s%s", address, constant.HelperBackupPath)
	log.Infof("fetch backup stream from %s", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.User, c.Password)
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &common.TransportError{Address: address, Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &common.TransportError{Address: address, Cause: fmt.Errorf("unexpected status: %s", resp.Status)}
	}
	return wrap(&transportReader{ReadCloser: resp.Body, address: address}, c.Compressed)
}

// wrap decompress stream if needed, closing the returned reader closes the connection
func wrap(r *transportReader, compressed bool) (io.ReadCloser, error) {
	if !compressed {
		return r, nil
	}
	zr, err := backup.Decompress(r)
	if err != nil {
		_ = r.Close()
		return nil, &common.TransportError{Address: r.address, Cause: err}
	}
	return &gzipReader{ReadCloser: zr, conn: r}, nil
}

// transportReader turn read failure into TransportError, a reset connection means the producer aborted
type transportReader struct {
	io.ReadCloser
	address string
}

func (t *transportReader) Read(p []byte) (int, error) {
	n, err := t.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = &common.TransportError{Address: t.address, Cause: err}
	}
	return n, err
}

// gzipReader report a truncated gzip stream as TransportError too
type gzipReader struct {
	io.ReadCloser
	conn *transportReader
}

func (g *gzipReader) Read(p []byte) (int, error) {
	n, err := g.ReadCloser.Read(p)
	var te *common.TransportError
	if err != nil && err != io.EOF && !errors.As(err, &te) {
		err = &common.TransportError{Address: g.conn.address, Cause: err}
	}
	return n, err
}

func (g *gzipReader) Close() error {
	_ = g.ReadCloser.Close()
	return g.conn.Close()
}
