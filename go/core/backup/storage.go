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
package backup

import (
	"context"
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/system/osp"
	"io"
	"os"
	"path/filepath"
)

// NormalizeBucketURI convert bucket uri `scheme://bucket/path` to rclone remote `scheme:bucket/path`
func NormalizeBucketURI(uri string) string {
	if match := common.BucketURIRegexp.FindStringSubmatch(uri); match != nil {
		return match[1] + ":" + match[2]
	}
	return uri
}

// Storage route blob access by uri scheme, `file://` goes to local filesystem and everything else to rclone
type Storage struct {
	RcloneBinary     string
	RcloneConfigFile string
}

// Download open blob at uri for read
func (s *Storage) Download(ctx context.Context, uri string) (io.ReadCloser, error) {
	if path, ok := localPath(uri); ok {
		return os.Open(path)
	}
	if err := s.checkConfig(); err != nil {
		return nil, err
	}
	log.Infof("download %s", uri)
	return osp.Output(ctx, s.RcloneBinary, "--config="+s.RcloneConfigFile, "cat", NormalizeBucketURI(uri))
}

// Upload write blob read from reader to uri
func (s *Storage) Upload(ctx context.Context, uri string, blob io.Reader) error {
	if path, ok := localPath(uri); ok {
		return writeLocal(path, blob)
	}
	if err := s.checkConfig(); err != nil {
		return err
	}
	log.Infof("upload %s", uri)
	return osp.Pipe(ctx, blob, nil, s.RcloneBinary, "--config="+s.RcloneConfigFile, "rcat", NormalizeBucketURI(uri))
}

func (s *Storage) checkConfig() error {
	exists, err := osp.PathExists(s.RcloneConfigFile)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("rclone config file %s does not exist", s.RcloneConfigFile)
	}
	return nil
}

// localPath return path of a file:// uri
func localPath(uri string) (string, bool) {
	match := common.BucketURIRegexp.FindStringSubmatch(uri)
	if match == nil || match[1] != constant.StorageSchemeFile {
		return "", false
	}
	return match[2], true
}

// writeLocal write blob to a temporary file and rename it, a failed upload leaves no partial file behind
func writeLocal(path string, blob io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), constant.OSTempFilePatten)
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err = io.Copy(tmp, blob); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
