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
package http

import (
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/metric"
	"github.com/go-martini/martini"
	"github.com/martini-contrib/auth"
	"github.com/martini-contrib/render"
	"net/http"
	"sort"
)

const (
	healthPath = constant.HelperHealthPath
	statusPath = constant.HelperStatusPath
	backupPath = constant.HelperBackupPath
)

var registerApiList []string

// APIResponse is the json body of api calls
type APIResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// StatusDetail is what status api reports about backup streaming
type StatusDetail struct {
	Busy     bool                      `json:"busy"`
	Compress bool                      `json:"compress"`
	Policy   string                    `json:"policy"`
	Sessions metric.AggregatedSessions `json:"sessions"`
	Metrics  map[string]interface{}    `json:"metrics"`
	APIs     []string                  `json:"apis"`
}

// registerRequest register handlers for path and method
func registerRequest(m *martini.ClassicMartini, method string, path string, handlers ...martini.Handler) {
	switch method {
	case http.MethodGet:
		m.Get(path, handlers...)
	case http.MethodPost:
		m.Post(path, handlers...)
	default:
		log.Errorf("method:%s not be supported now, %s", method, path)
		return
	}
	registerApiList = append(registerApiList, path+","+method)
}

// RegisterRequests makes for the de-facto list of known API calls
func (s *Server) RegisterRequests(m *martini.ClassicMartini) {
	registerRequest(m, http.MethodGet, healthPath, Health)
	registerRequest(m, http.MethodGet, statusPath, s.Status)
	registerRequest(m, http.MethodGet, backupPath, auth.Basic(s.User, s.Password), s.Backup)
	sort.Strings(registerApiList)
}

// Health answers liveness and readiness probes
func Health(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error("write to response, error:%s", err)
	}
}

// Status report stream server state, metric snapshot and aggregated duration of recent sessions
func (s *Server) Status(r render.Render) {
	opts := s.Stream.Options()
	r.JSON(http.StatusOK, &APIResponse{Code: "OK", Details: &StatusDetail{
		Busy:     s.Stream.Busy(),
		Compress: opts.Compress,
		Policy:   opts.BusyPolicy,
		Sessions: s.Stream.History().Aggregate(),
		Metrics:  metric.Snapshot(),
		APIs:     registerApiList,
	}})
}

// Backup stream backup of local instance as response body. It shares the single producer slot with
// the raw backup port, a failed stream aborts the connection so consumer never sees a complete body.
func (s *Server) Backup(w http.ResponseWriter, req *http.Request) {
	if !s.Limiter.Allow() {
		log.Warning("traffic is restricted, backup request from %s rejected", req.RemoteAddr)
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	if !s.Stream.TryAcquire() {
		metric.Inc(constant.MetricStreamReject)
		log.Warning("reject consumer %s: %s", req.RemoteAddr, common.StreamBusyError)
		http.Error(w, common.StreamBusyError.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.Stream.Release()
	if s.Stream.Closed() {
		http.Error(w, "backup stream server is closed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	err := s.Stream.ServeSession(req.Context(), w, req.RemoteAddr)
	if err != nil {
		abort(w)
	}
	s.Stream.SessionDone(err)
}

// abort close the underlying connection of a response already being written
func abort(w http.ResponseWriter) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		log.Warning("can not abort response, connection is not hijackable")
		return
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		log.Error("hijack connection, error:%s", err)
		return
	}
	_ = conn.Close()
}
