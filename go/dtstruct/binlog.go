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
package dtstruct

import (
	"fmt"
	"strconv"
	"strings"
)

// LogCoordinates described binary log coordinates in the form of log file & log position.
type LogCoordinates struct {
	LogFile string
	LogPos  int64
}

// ParseLogCoordinates will parse coordinates from a string representation such as mysql-bin.000003:154
func ParseLogCoordinates(logFileLogPos string) (*LogCoordinates, error) {
	tokens := strings.SplitN(logFileLogPos, ":", 2)
	if len(tokens) != 2 || tokens[0] == "" {
		return nil, fmt.Errorf("cannot parse log coordinates from %s, expected format is file:pos", logFileLogPos)
	}
	logPos, err := strconv.ParseInt(tokens[1], 10, 64)
	if err != nil || logPos < 0 {
		return nil, fmt.Errorf("invalid log pos: %s", tokens[1])
	}
	return &LogCoordinates{LogFile: tokens[0], LogPos: logPos}, nil
}

// DisplayString returns a user-friendly string representation of these coordinates
func (this *LogCoordinates) DisplayString() string {
	return fmt.Sprintf("%s:%d", this.LogFile, this.LogPos)
}

// String returns a user-friendly string representation of these coordinates
func (this LogCoordinates) String() string {
	return this.DisplayString()
}

// Equals tests equality of this coordinate and another one.
func (this *LogCoordinates) Equals(other *LogCoordinates) bool {
	if other == nil {
		return false
	}
	return this.LogFile == other.LogFile && this.LogPos == other.LogPos
}

// IsEmpty returns true if the log file is empty, unnamed
func (this *LogCoordinates) IsEmpty() bool {
	return this.LogFile == ""
}

// PositionKind tags the variant held by a ReplicationPosition
type PositionKind int

const (
	PositionUnknown PositionKind = iota
	PositionCoordinates
	PositionAutoPosition
)

func (k PositionKind) String() string {
	switch k {
	case PositionCoordinates:
		return "coordinates"
	case PositionAutoPosition:
		return "auto-position"
	}
	return "unknown"
}

// ReplicationPosition is where a replica starts replicating from. Coordinates is only meaningful for
// PositionCoordinates, GTIDSet is the executed set to purge before auto positioning, may be empty.
type ReplicationPosition struct {
	Kind        PositionKind
	Coordinates LogCoordinates
	GTIDSet     string
	Source      string // where the position came from, file name or live query
}

// NewCoordinatesPosition create position with exact binlog file and offset
func NewCoordinatesPosition(logFile string, logPos int64, source string) ReplicationPosition {
	return ReplicationPosition{Kind: PositionCoordinates, Coordinates: LogCoordinates{LogFile: logFile, LogPos: logPos}, Source: source}
}

// NewAutoPosition create position negotiated by gtid
func NewAutoPosition(gtidSet string, source string) ReplicationPosition {
	return ReplicationPosition{Kind: PositionAutoPosition, GTIDSet: gtidSet, Source: source}
}

// UnknownPosition is returned when no position could be determined
func UnknownPosition() ReplicationPosition {
	return ReplicationPosition{Kind: PositionUnknown}
}

// IsUnknown return true if replication setup should be skipped
func (p ReplicationPosition) IsUnknown() bool {
	return p.Kind == PositionUnknown
}

func (p ReplicationPosition) String() string {
	switch p.Kind {
	case PositionCoordinates:
		return fmt.Sprintf("%s %s (from %s)", p.Kind, p.Coordinates.DisplayString(), p.Source)
	case PositionAutoPosition:
		if p.GTIDSet != "" {
			return fmt.Sprintf("%s gtid_purged:%s (from %s)", p.Kind, p.GTIDSet, p.Source)
		}
		return fmt.Sprintf("%s (from %s)", p.Kind, p.Source)
	}
	return p.Kind.String()
}
