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
	"golang.org/x/sync/errgroup"
	"io"
	"time"
)

// TakeBackup consume backup stream of host and upload it gzip compressed to uri
func (e *Engine) TakeBackup(ctx context.Context, host string, uri string) error {
	if e.Storage == nil {
		return log.Errore(&common.CloneError{Stage: common.StageUpload, Cause: fmt.Errorf("no object storage for %s", uri)})
	}
	start := time.Now()
	stream, err := e.fetch(ctx, host)
	if err != nil {
		return log.Errore(err)
	}
	defer stream.Close()

	br := bufio.NewReaderSize(stream, constant.StreamCopyBufferSize)
	if _, err = br.Peek(1); err != nil {
		if err == io.EOF {
			err = common.EmptyStreamError
		}
		return log.Errore(&common.CloneError{Stage: common.StageFetch, Cause: &common.TransportError{Address: host, Cause: err}})
	}
	compressed := backup.IsGzip(br)
	rr := &recordingReader{r: br}
	pr, pw := io.Pipe()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		if compressed {
			_, err = io.Copy(pw, rr)
		} else {
			zw := backup.CompressWriter(pw)
			if _, err = io.Copy(zw, rr); err == nil {
				err = zw.Close()
			}
		}
		pw.CloseWithError(err)
		// write failure comes from upload side and is reported there
		if rr.err != nil {
			return &common.CloneError{Stage: common.StageFetch, Cause: rr.err}
		}
		return nil
	})
	group.Go(func() error {
		err := e.Storage.Upload(groupCtx, uri, pr)
		pr.CloseWithError(err)
		if err != nil {
			return &common.CloneError{Stage: common.StageUpload, Cause: err}
		}
		return nil
	})
	if err = group.Wait(); err != nil {
		return log.Errore(err)
	}
	log.Infof("backup of %s uploaded to %s, %d bytes read in %s", host, uri, rr.n, time.Since(start))
	return nil
}
