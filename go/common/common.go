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
package common

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ReplicationNotRunningError = fmt.Errorf("replication not running")
	StreamBusyError            = fmt.Errorf("backup stream is busy serving another consumer")
	PrimaryHasNoSourceError    = fmt.Errorf("primary node has no clone source")
	EmptyStreamError           = fmt.Errorf("backup stream closed before any data, source may be busy")

	// hostname is <name>-<ordinal>, ordinal is the integer after the last dash
	HostnameOrdinalRegexp = regexp.MustCompile(`^(.+)-([0-9]+)$`)

	// bucket uri, e.g. s3://bucket/path/backup.xbackup.gz
	BucketURIRegexp = regexp.MustCompile(`^([a-zA-Z][-a-zA-Z0-9+.]*)://(.*)$`)
)

// MalformedHostnameError node identity can not be derived from hostname
type MalformedHostnameError struct {
	Hostname string
}

func (e *MalformedHostnameError) Error() string {
	return fmt.Sprintf("malformed hostname %q: expected <name>-<ordinal>", e.Hostname)
}

// Stage of clone in which a failure happened
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StagePrepare Stage = "prepare"
	StageUpload  Stage = "upload"
)

// CloneError fetch, extract or prepare of clone data failed
type CloneError struct {
	Stage Stage
	Cause error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone failed at %s: %v", e.Stage, e.Cause)
}

func (e *CloneError) Unwrap() error {
	return e.Cause
}

// MetadataParseError content of metadata file does not hold a replication position
type MetadataParseError struct {
	File    string
	Content string
}

func (e *MetadataParseError) Error() string {
	return fmt.Sprintf("can not parse replication position from %s, content: %q", e.File, e.Content)
}

// ReplicationConfigError statement against local instance failed
type ReplicationConfigError struct {
	Statement string
	Cause     error
}

func (e *ReplicationConfigError) Error() string {
	return fmt.Sprintf("replication config statement %q failed: %v", e.Statement, e.Cause)
}

func (e *ReplicationConfigError) Unwrap() error {
	return e.Cause
}

// TransportError peer unreachable or stream dropped
type TransportError struct {
	Address string
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport to %s failed: %v", e.Address, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether restarting the whole process may succeed, malformed hostname needs an operator
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var mhe *MalformedHostnameError
	if errors.As(err, &mhe) {
		return false
	}
	var ce *CloneError
	var te *TransportError
	var rce *ReplicationConfigError
	return errors.As(err, &ce) || errors.As(err, &te) || errors.As(err, &rce)
}
