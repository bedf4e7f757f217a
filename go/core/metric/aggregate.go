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
package metric

import (
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"github.com/montanaflynn/stats"
	"sync"
	"time"
)

// Session is the result of one backup stream session
type Session struct {
	ID       string
	Peer     string
	Start    time.Time
	Duration time.Duration
	Bytes    int64
	Err      error
}

// AggregatedSessions summary of recent stream sessions
type AggregatedSessions struct {
	Count             int
	Failed            int
	TotalBytes        int64
	MaxSeconds        float64
	MeanSeconds       float64
	MedianSeconds     float64
	P95Seconds        float64
	LastSessionID     string
	LastSessionFailed bool
}

// SessionHistory keep the last N stream sessions
type SessionHistory struct {
	sync.Mutex
	size     int
	sessions []Session
}

// NewSessionHistory create history holding at most size sessions
func NewSessionHistory(size int) *SessionHistory {
	if size <= 0 {
		size = constant.SessionHistorySize
	}
	return &SessionHistory{size: size}
}

// Add append session to history, the oldest one is dropped when history is full
func (h *SessionHistory) Add(session Session) {
	h.Lock()
	defer h.Unlock()
	h.sessions = append(h.sessions, session)
	if len(h.sessions) > h.size {
		h.sessions = h.sessions[len(h.sessions)-h.size:]
	}
}

// Sessions return copy of sessions in history
func (h *SessionHistory) Sessions() []Session {
	h.Lock()
	defer h.Unlock()
	return append([]Session(nil), h.sessions...)
}

// Aggregate returns the aggregated duration of sessions in history
func (h *SessionHistory) Aggregate() AggregatedSessions {
	sessions := h.Sessions()
	agg := AggregatedSessions{Count: len(sessions)}
	if len(sessions) == 0 {
		return agg
	}

	var durationList stats.Float64Data
	for _, session := range sessions {
		durationList = append(durationList, session.Duration.Seconds())
		agg.TotalBytes += session.Bytes
		if session.Err != nil {
			agg.Failed++
		}
	}
	last := sessions[len(sessions)-1]
	agg.LastSessionID = last.ID
	agg.LastSessionFailed = last.Err != nil

	// generate aggregate metric
	var aggVal float64
	var err error
	if aggVal, err = stats.Max(durationList); err == nil {
		agg.MaxSeconds = aggVal
	}
	if aggVal, err = stats.Mean(durationList); err == nil {
		agg.MeanSeconds = aggVal
	}
	if aggVal, err = stats.Median(durationList); err == nil {
		agg.MedianSeconds = aggVal
	}
	if aggVal, err = stats.Percentile(durationList, 95); err == nil {
		agg.P95Seconds = aggVal
	}
	return agg
}
