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
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/system/osp"
	"os"
	"path/filepath"
)

// DataDirState is observed from data directory, never stored
type DataDirState int

const (
	DataDirEmpty DataDirState = iota
	DataDirPopulated
)

func (s DataDirState) String() string {
	if s == DataDirPopulated {
		return "populated"
	}
	return "empty"
}

// InspectDataDir report data directory as populated if mysqld initialised it or a previous bootstrap completed
func InspectDataDir(dataDir string) (DataDirState, error) {
	for _, marker := range []string{
		filepath.Join(dataDir, constant.DataDirMarker),
		filepath.Join(dataDir, constant.OperatorDatabase, constant.OperatorInitCSVFile),
	} {
		exist, err := osp.PathExists(marker)
		if err != nil {
			return DataDirEmpty, log.Errorf("inspect data dir %s, error:%s", dataDir, err)
		}
		if exist {
			log.Debug("found marker %s in data dir", marker)
			return DataDirPopulated, nil
		}
	}
	return DataDirEmpty, nil
}

// prepareDataDir create data dir and remove lost+found which xbstream and mysqld refuse to handle
func prepareDataDir(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return err
	}
	lostFound := filepath.Join(dataDir, constant.DataDirLostFound)
	if exist, _ := osp.PathExists(lostFound); exist {
		log.Infof("remove %s", lostFound)
		return os.RemoveAll(lostFound)
	}
	return nil
}
