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
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/system/osp"
	"io"
	"strconv"
)

// Xtrabackup produce, extract and prepare backup streams using xtrabackup and xbstream binaries
type Xtrabackup struct {
	XtrabackupBinary string
	XbstreamBinary   string
	Host             string
	Port             int
	User             string
	Password         string
}

// ProduceBackupStream stream a backup of local instance in xbstream format, slave info is recorded so that a
// node cloned from a replica knows where to resume replication. The bootstrap bookkeeping table is excluded
// so that a clone is not mistaken for an initialised node.
func (x *Xtrabackup) ProduceBackupStream(ctx context.Context) (io.ReadCloser, error) {
	log.Infof("start backup stream of %s:%d", x.Host, x.Port)
	return osp.Output(ctx, x.XtrabackupBinary,
		"--backup",
		"--slave-info",
		"--stream=xbstream",
		"--tables-exclude="+constant.OperatorDatabase+"."+constant.OperatorInitTable,
		"--host="+x.Host,
		"--port="+strconv.Itoa(x.Port),
		"--user="+x.User,
		"--password="+x.Password,
	)
}

// ExtractStream extract xbstream into data dir
func (x *Xtrabackup) ExtractStream(ctx context.Context, stream io.Reader, dataDir string) error {
	if err := osp.Pipe(ctx, stream, nil, x.XbstreamBinary, "-x", "-C", dataDir); err != nil {
		return fmt.Errorf("extract stream to %s: %w", dataDir, err)
	}
	return nil
}

// Prepare apply redo log so that data dir can be started and binlog metadata files are final
func (x *Xtrabackup) Prepare(ctx context.Context, dataDir string) error {
	log.Infof("prepare data in %s", dataDir)
	if _, err := osp.ExecCmd(ctx, x.XtrabackupBinary, "--prepare", "--target-dir="+dataDir); err != nil {
		return fmt.Errorf("prepare %s: %w", dataDir, err)
	}
	return nil
}
