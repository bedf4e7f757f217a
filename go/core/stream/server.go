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
package stream

import (
	"context"
	"gitee.com/opengauss/mysql-sidecar/go/common"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/backup"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"gitee.com/opengauss/mysql-sidecar/go/core/metric"
	"github.com/google/uuid"
	"io"
	"net"
	"sync"
	"time"
)

// Producer produce the backup stream of local instance
type Producer interface {
	ProduceBackupStream(ctx context.Context) (io.ReadCloser, error)
}

// Options of backup stream server
type Options struct {
	Compress   bool   // gzip stream on the wire
	BusyPolicy string // reject or queue a consumer while another one is served
	Once       bool   // stop after first session
}

// Server expose backup stream of local instance to at most one consumer at a time. The slot is shared with
// the http backup endpoint so the producer never runs twice concurrently.
type Server struct {
	producer Producer
	opts     Options
	history  *metric.SessionHistory
	slot     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	onceErr  chan error
}

// NewServer create backup stream server
func NewServer(producer Producer, opts Options) *Server {
	if opts.BusyPolicy == "" {
		opts.BusyPolicy = constant.StreamBusyPolicyReject
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		producer: producer,
		opts:     opts,
		history:  metric.NewSessionHistory(constant.SessionHistorySize),
		slot:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		onceErr:  make(chan error, 1),
	}
}

// History return history of sessions served
func (s *Server) History() *metric.SessionHistory {
	return s.history
}

// Options return server options
func (s *Server) Options() Options {
	return s.opts
}

// TryAcquire take the session slot without blocking
func (s *Server) TryAcquire() bool {
	select {
	case s.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire take the session slot, blocking until it is free or ctx is done
func (s *Server) Acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Release give back the session slot
func (s *Server) Release() {
	<-s.slot
}

// Busy return true if a session is in progress
func (s *Server) Busy() bool {
	return len(s.slot) > 0
}

// Listen bind the backup port
func (s *Server) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return log.Errore(&common.TransportError{Address: address, Cause: err})
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	log.Infof("backup stream server listen on %s, compress:%t, busy policy:%s, once:%t", listener.Addr(), s.opts.Compress, s.opts.BusyPolicy, s.opts.Once)
	return nil
}

// Addr return listen address
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accept consumers until server is closed, or until the first session is done in once mode
// in which case the session result is returned
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return log.Errorf("backup stream server is not listening")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.Closed() {
				if s.opts.Once {
					select {
					case err = <-s.onceErr:
						return err
					default:
					}
				}
				return nil
			}
			return log.Errore(&common.TransportError{Address: listener.Addr().String(), Cause: err})
		}

		switch s.opts.BusyPolicy {
		case constant.StreamBusyPolicyQueue:
			go func() {
				if err := s.Acquire(s.ctx); err != nil {
					_ = conn.Close()
					return
				}
				s.handle(conn)
			}()
		default:
			if !s.TryAcquire() {
				metric.Inc(constant.MetricStreamReject)
				log.Warning("reject consumer %s: %s", conn.RemoteAddr(), common.StreamBusyError)
				_ = conn.Close()
				continue
			}
			go s.handle(conn)
		}
	}
}

// handle serve one consumer, the slot must be held by caller
func (s *Server) handle(conn net.Conn) {
	defer s.Release()

	// a queued consumer may get the slot after the one-shot session is over
	if s.Closed() {
		_ = conn.Close()
		return
	}

	err := s.ServeSession(s.ctx, conn, conn.RemoteAddr().String())
	if err != nil {
		// reset instead of a clean close so consumer can tell the stream is truncated
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetLinger(0)
		}
	}
	_ = conn.Close()

	s.SessionDone(err)
}

// SessionDone end serving after the first session in once mode, err is then returned by Serve.
// Every producer holding the slot calls it when its session is over.
func (s *Server) SessionDone(err error) {
	if !s.opts.Once {
		return
	}
	select {
	case s.onceErr <- err:
	default:
	}
	_ = s.Close()
}

// ServeSession copy backup stream to w, the slot must be held by caller
func (s *Server) ServeSession(ctx context.Context, w io.Writer, peer string) (err error) {
	session := metric.Session{ID: uuid.NewString(), Peer: peer, Start: time.Now()}
	metric.Inc(constant.MetricStreamSession)
	log.Infof("stream session %s to %s started", session.ID, peer)

	defer func() {
		session.Duration = time.Since(session.Start)
		session.Err = err
		s.history.Add(session)
		metric.Since(constant.MetricStreamDuration, session.Start)
		metric.Counter(constant.MetricStreamBytes).Inc(session.Bytes)
		if err != nil {
			metric.Inc(constant.MetricStreamFail)
			log.Error("stream session %s to %s failed after %d bytes, error:%s", session.ID, peer, session.Bytes, err)
			return
		}
		log.Infof("stream session %s to %s done, %d bytes in %s", session.ID, peer, session.Bytes, session.Duration)
	}()

	stream, err := s.producer.ProduceBackupStream(ctx)
	if err != nil {
		return err
	}

	dst := w
	var zw io.WriteCloser
	if s.opts.Compress {
		zw = backup.CompressWriter(w)
		dst = zw
	}
	session.Bytes, err = io.CopyBuffer(&plainWriter{w: dst}, stream, make([]byte, constant.StreamCopyBufferSize))
	closeErr := stream.Close()
	if err != nil {
		return &common.TransportError{Address: peer, Cause: err}
	}
	if closeErr != nil {
		return closeErr
	}

	// gzip trailer is only written for a complete stream
	if zw != nil {
		if err = zw.Close(); err != nil {
			return &common.TransportError{Address: peer, Cause: err}
		}
	}
	return nil
}

// Close stop accepting consumers and abort running session
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Closed return true once the server stopped serving
func (s *Server) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// plainWriter hides ReaderFrom of the underlying writer so CopyBuffer uses the given buffer
type plainWriter struct {
	w io.Writer
}

func (p *plainWriter) Write(b []byte) (int, error) {
	return p.w.Write(b)
}
