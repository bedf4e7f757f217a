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
package clone

import (
	"bufio"
	"context"
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/backup"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/metric"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"io"
	"time"
)

// Action is how a node obtains its initial data set
type Action int

const (
	ActionNone Action = iota
	ActionObjectStorage
	ActionPeer
)

func (a Action) String() string {
	switch a {
	case ActionObjectStorage:
		return "object storage"
	case ActionPeer:
		return "peer"
	default:
		return "none"
	}
}

// Decide pick clone source from role, data dir state and seed uri. A fresh primary without seed starts empty.
func Decide(node dtstruct.NodeIdentity, state DataDirState, seedURI string) Action {
	if state == DataDirPopulated {
		return ActionNone
	}
	if node.IsPrimary() {
		if seedURI == "" {
			return ActionNone
		}
		return ActionObjectStorage
	}
	return ActionPeer
}

// Engine fill an empty data directory from object storage or from a peer. It never retries,
// a CloneError wrapping a TransportError means the whole bootstrap may be restarted.
type Engine struct {
	DataDir string
	Tool    dtstruct.BackupTool
	Storage dtstruct.ObjectStorage
	Source  dtstruct.StreamSource
}

// Bootstrap run clone action decided for node, then prepare the extracted data
func (e *Engine) Bootstrap(ctx context.Context, node dtstruct.NodeIdentity, state DataDirState, seedURI string) (err error) {
	action := Decide(node, state, seedURI)
	if action == ActionNone {
		metric.Inc(constant.MetricCloneSkip)
		log.Infof("%s: data dir %s is %s, skip clone", node.Hostname, e.DataDir, state)
		return nil
	}

	start := time.Now()
	metric.Inc(constant.MetricCloneAttempt)
	defer func() {
		metric.Since(constant.MetricCloneLatency, start)
		if err != nil {
			metric.Inc(constant.MetricCloneFail)
			err = log.Errore(err)
		}
	}()

	if err = prepareDataDir(e.DataDir); err != nil {
		return &common.CloneError{Stage: common.StageExtract, Cause: err}
	}

	var stream io.ReadCloser
	source := seedURI
	switch action {
	case ActionObjectStorage:
		log.Infof("%s: clone from %s", node.Hostname, seedURI)
		stream, err = e.download(ctx, seedURI)
	case ActionPeer:
		source = node.SourceHostAddress
		log.Infof("%s: clone from peer %s", node.Hostname, source)
		stream, err = e.fetch(ctx, source)
	}
	if err != nil {
		return err
	}
	if err = e.extract(ctx, stream, source); err != nil {
		return err
	}

	log.Infof("%s: prepare data dir %s", node.Hostname, e.DataDir)
	if err = e.Tool.Prepare(ctx, e.DataDir); err != nil {
		return &common.CloneError{Stage: common.StagePrepare, Cause: err}
	}
	log.Infof("%s: clone by %s done in %s", node.Hostname, action, time.Since(start))
	return nil
}

// download seed from object storage, seed is decompressed when it is gzip
func (e *Engine) download(ctx context.Context, uri string) (io.ReadCloser, error) {
	if e.Storage == nil {
		return nil, &common.CloneError{Stage: common.StageFetch, Cause: fmt.Errorf("no object storage for %s", uri)}
	}
	blob, err := e.Storage.Download(ctx, uri)
	if err != nil {
		return nil, &common.CloneError{Stage: common.StageFetch, Cause: err}
	}
	br := bufio.NewReaderSize(blob, constant.StreamCopyBufferSize)
	if !backup.IsGzip(br) {
		return &readCloser{Reader: br, closer: blob}, nil
	}
	zr, err := backup.Decompress(br)
	if err != nil {
		_ = blob.Close()
		return nil, &common.CloneError{Stage: common.StageFetch, Cause: err}
	}
	return &readCloser{Reader: zr, closer: blob}, nil
}

// fetch backup stream from peer
func (e *Engine) fetch(ctx context.Context, host string) (io.ReadCloser, error) {
	if host == "" {
		return nil, &common.CloneError{Stage: common.StageFetch, Cause: common.PrimaryHasNoSourceError}
	}
	if e.Source == nil {
		return nil, &common.CloneError{Stage: common.StageFetch, Cause: fmt.Errorf("no stream source for %s", host)}
	}
	stream, err := e.Source.Fetch(ctx, host)
	if err != nil {
		return nil, &common.CloneError{Stage: common.StageFetch, Cause: err}
	}
	return stream, nil
}

// extract stream into data dir. A stream that broke is a fetch failure even if extractor accepted
// what it got, the data dir is then incomplete. So is a stream without data, a busy peer closes
// the connection of a rejected consumer without writing.
func (e *Engine) extract(ctx context.Context, stream io.ReadCloser, source string) error {
	rr := &recordingReader{r: stream}
	err := e.Tool.ExtractStream(ctx, rr, e.DataDir)
	closeErr := stream.Close()
	if rr.err != nil {
		return &common.CloneError{Stage: common.StageFetch, Cause: rr.err}
	}
	if rr.n == 0 {
		return &common.CloneError{Stage: common.StageFetch, Cause: &common.TransportError{Address: source, Cause: common.EmptyStreamError}}
	}
	if err != nil {
		return &common.CloneError{Stage: common.StageExtract, Cause: err}
	}
	if closeErr != nil {
		return &common.CloneError{Stage: common.StageFetch, Cause: closeErr}
	}
	log.Infof("extracted %d bytes into %s", rr.n, e.DataDir)
	return nil
}

// recordingReader remember the first read failure of the stream
type recordingReader struct {
	r   io.Reader
	n   int64
	err error
}

func (r *recordingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.n += int64(n)
	if err != nil && err != io.EOF && r.err == nil {
		r.err = err
	}
	return n, err
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error {
	if c, ok := r.Reader.(io.Closer); ok {
		_ = c.Close()
	}
	return r.closer.Close()
}
