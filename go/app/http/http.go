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
	"context"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/stream"
	"gitee.com/opengauss/mysql-sidecar/go/dtstruct"
	"github.com/go-martini/martini"
	"github.com/martini-contrib/render"
	"golang.org/x/time/rate"
	"net"
	"net/http"
	"time"
)

// Server is the helper http server of a node: probes, status and backup over http
type Server struct {
	Address  string
	User     string // basic auth of backup endpoint
	Password string
	Stream   *stream.Server
	Limiter  *rate.Limiter

	server   *http.Server
	listener net.Listener
}

// NewServer create helper http server sharing the producer slot of stream server
func NewServer(address string, streamServer *stream.Server, user string, password string) *Server {
	return &Server{
		Address:  address,
		User:     user,
		Password: password,
		Stream:   streamServer,
		Limiter:  rate.NewLimiter(constant.HttpLimit, constant.HttpLimitBurst),
	}
}

// Handler build martini handler of all endpoints
func (s *Server) Handler() http.Handler {
	martini.Env = martini.Prod
	m := CustomMartini()
	m.Use(render.Renderer(render.Options{IndentJSON: true}))
	log.Info("Registering endpoints")
	s.RegisterRequests(m)
	return m
}

// Listen bind helper address, ":0" picks a free port
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return log.Errorf("helper http server listen on %s, error:%s", s.Address, err)
	}
	s.listener = listener
	// body of backup is long lived, only reading request is bounded
	s.server = &http.Server{Handler: s.Handler(), ReadTimeout: constant.HttpReadTimeout * time.Second}
	log.Infof("Starting HTTP listener on %s", listener.Addr())
	return nil
}

// Addr return bound address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run serve in worker pool, server is shut down when pool quits, a running backup is cut after a grace period
func (s *Server) Run(wp *dtstruct.WorkerPool) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	return wp.AsyncRun(constant.WorkerNameHttpServer, func(workerExit chan struct{}) error {
		go func() {
			<-workerExit
			ctx, cancel := context.WithTimeout(context.Background(), constant.HttpShutdownTimeout*time.Second)
			defer cancel()
			if err := s.server.Shutdown(ctx); err != nil {
				log.Error("stop http server, error:%s", err)
				_ = s.server.Close()
			}
		}()
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			return log.Errorf("http server serve, error:%s", err)
		}
		return nil
	})
}
