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
package position

import (
	"context"
	"errors"
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/db"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/system/osp"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"gitee.com/opengauss/mysql-sidecar/go/util"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const liveSource = "show master status"

// Extractor find the replication starting point of a node
type Extractor struct {
	DataDir      string
	GTIDMode     bool
	Client       dtstruct.InstanceClient // used by primary only, may be nil
	PollInterval time.Duration
	ReadyTimeout time.Duration // zero waits until instance is ready
}

// NewExtractor create extractor reading metadata files under data dir
func NewExtractor(dataDir string, gtidMode bool, client dtstruct.InstanceClient) *Extractor {
	return &Extractor{DataDir: dataDir, GTIDMode: gtidMode, Client: client, PollInterval: constant.ReadinessPollInterval * time.Millisecond}
}

// Extract return the first position found in order: replica metadata file, primary metadata file,
// live status of primary. Malformed metadata is logged and skipped.
func (e *Extractor) Extract(ctx context.Context, node dtstruct.NodeIdentity) dtstruct.ReplicationPosition {
	for _, meta := range []struct {
		file  string
		parse func(string) (*dtstruct.LogCoordinates, string, error)
	}{
		{constant.ReplicaInfoFile, ParseReplicaInfo},
		{constant.BinlogInfoFile, ParseBinlogInfo},
	} {
		path := filepath.Join(e.DataDir, meta.file)
		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warning("can not read %s, error:%s", path, err)
			}
			continue
		}
		coordinates, gtidSet, err := meta.parse(string(content))
		if pos, ok := e.toPosition(coordinates, gtidSet, meta.file, err); ok {
			log.Infof("replication position of %s: %s", node.Hostname, pos)
			return pos
		}
	}

	if node.IsPrimary() && e.Client != nil {
		pos, err := e.live(ctx)
		if err == nil {
			log.Infof("replication position of %s: %s", node.Hostname, pos)
			return pos
		}
		log.Warning("can not query live position on primary %s, error:%s", node.Hostname, err)
	}

	log.Warning("no replication position found for %s in %s", node.Hostname, e.DataDir)
	return dtstruct.UnknownPosition()
}

// Retire rename metadata files once replication was configured from them. A later run finds no position
// and keeps the replication state mysqld already has instead of rewinding it to the clone position.
func (e *Extractor) Retire() error {
	for _, file := range []string{constant.ReplicaInfoFile, constant.BinlogInfoFile} {
		path := filepath.Join(e.DataDir, file)
		if exist, _ := osp.PathExists(path); !exist {
			continue
		}
		if err := os.Rename(path, path+constant.AppliedSuffix); err != nil {
			return log.Errorf("retire %s, error:%s", path, err)
		}
		log.Infof("retire %s", path)
	}
	return nil
}

// toPosition choose the position variant by replication mode, parse error is only fatal to coordinates mode
// or when the file holds no gtid set either
func (e *Extractor) toPosition(coordinates *dtstruct.LogCoordinates, gtidSet string, source string, err error) (dtstruct.ReplicationPosition, bool) {
	var mpe *common.MetadataParseError
	if err != nil && !errors.As(err, &mpe) {
		log.Warning("parse %s failed, error:%s", source, err)
		return dtstruct.UnknownPosition(), false
	}
	if e.GTIDMode && (err == nil || gtidSet != "") {
		return dtstruct.NewAutoPosition(gtidSet, source), true
	}
	if err != nil {
		log.Warning("%s", err)
		return dtstruct.UnknownPosition(), false
	}
	return dtstruct.NewCoordinatesPosition(coordinates.LogFile, coordinates.LogPos, source), true
}

// live query binlog coordinates of local primary once it accepts connection
func (e *Extractor) live(ctx context.Context) (dtstruct.ReplicationPosition, error) {
	if err := db.WaitForReady(ctx, e.Client, e.PollInterval, e.ReadyTimeout); err != nil {
		return dtstruct.UnknownPosition(), err
	}
	coordinates, _, err := e.Client.MasterStatus(ctx)
	if err != nil {
		return dtstruct.UnknownPosition(), err
	}
	if coordinates == nil || coordinates.IsEmpty() {
		return dtstruct.UnknownPosition(), errors.New("binary log is not enabled")
	}
	return dtstruct.NewCoordinatesPosition(coordinates.LogFile, coordinates.LogPos, liveSource), nil
}

// ParseReplicaInfo parse metadata written when the backup was taken on a replica, e.g.
//
//	SET GLOBAL gtid_purged='uuid:1-5';
//	CHANGE MASTER TO MASTER_LOG_FILE='mysql-bin.000009', MASTER_LOG_POS=154
//
// gtid set is returned along with parse error so auto positioning can still use it
func ParseReplicaInfo(content string) (*dtstruct.LogCoordinates, string, error) {
	var logFile, logPos, gtidSet string
	for _, statement := range strings.Split(content, ";") {
		statement = strings.TrimSpace(statement)
		upper := strings.ToUpper(statement)
		switch {
		case strings.HasPrefix(upper, "SET GLOBAL GTID_PURGED"):
			if idx := strings.Index(statement, "="); idx > 0 {
				gtidSet = strings.Join(strings.Fields(util.TrimQuote(statement[idx+1:])), "")
			}
		case strings.HasPrefix(upper, "CHANGE MASTER TO"), strings.HasPrefix(upper, "CHANGE REPLICATION SOURCE TO"):
			directive := statement[strings.Index(upper, " TO ")+len(" TO "):]
			for _, pair := range strings.Split(directive, ",") {
				kv := strings.SplitN(pair, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToUpper(strings.TrimSpace(kv[0])) {
				case "MASTER_LOG_FILE", "SOURCE_LOG_FILE":
					logFile = util.TrimQuote(kv[1])
				case "MASTER_LOG_POS", "SOURCE_LOG_POS":
					logPos = util.TrimQuote(kv[1])
				}
			}
		}
	}
	coordinates, err := toCoordinates(constant.ReplicaInfoFile, content, logFile, logPos)
	return coordinates, gtidSet, err
}

// ParseBinlogInfo parse metadata written when the backup was taken on a primary: `<file>\t<pos>[\t<gtid set>]`
func ParseBinlogInfo(content string) (*dtstruct.LogCoordinates, string, error) {
	tokens := strings.Fields(content)
	if len(tokens) < 2 {
		return nil, "", &common.MetadataParseError{File: constant.BinlogInfoFile, Content: content}
	}
	gtidSet := strings.Join(tokens[2:], "")
	coordinates, err := toCoordinates(constant.BinlogInfoFile, content, tokens[0], tokens[1])
	return coordinates, gtidSet, err
}

func toCoordinates(file string, content string, logFile string, logPos string) (*dtstruct.LogCoordinates, error) {
	if logFile == "" || logPos == "" {
		return nil, &common.MetadataParseError{File: file, Content: content}
	}
	pos, err := strconv.ParseInt(logPos, 10, 64)
	if err != nil || pos < 0 {
		return nil, &common.MetadataParseError{File: file, Content: content}
	}
	return &dtstruct.LogCoordinates{LogFile: logFile, LogPos: pos}, nil
}
