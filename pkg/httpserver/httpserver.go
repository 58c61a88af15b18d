/*
Copyright 2011 Google Inc.

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

// Package httpserver wraps http.Server with request throttling bounded
// by a worker-count gate, request logging, and HTTP/2 support, the way
// a threaded WSGI deployment bounds its worker pool and logs each
// request's method, path and response size.
package httpserver

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go4.org/syncutil"
	"golang.org/x/net/http2"
)

// Server is a superset wrapper of http.Server: it bounds concurrent
// in-flight requests with a syncutil.Gate sized to maxThreads, and
// optionally logs every request's method, path, response code and
// size. Requests beyond that bound wait at the gate; the number of
// waiting requests is not bounded.
type Server struct {
	mux      *http.ServeMux
	listener net.Listener
	verbose  bool

	Logger *log.Logger

	H2Server http2.Server

	// ConnTimeout, when nonzero, bounds how long a single request may
	// take to read and to write before the connection is dropped.
	ConnTimeout time.Duration

	gate *syncutil.Gate

	mu   sync.Mutex
	reqs int64
}

// New returns a Server whose concurrency is bounded at maxThreads
// simultaneous requests. verbose turns on per-request logging.
func New(maxThreads int, verbose bool) *Server {
	if maxThreads < 1 {
		maxThreads = 1
	}
	return &Server{
		mux:     http.NewServeMux(),
		verbose: verbose,
		gate:    syncutil.NewGate(maxThreads),
	}
}

func (s *Server) printf(format string, v ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, v...)
		return
	}
	log.Printf(format, v...)
}

// ListenURL returns the server's base URL once Listen has succeeded.
func (s *Server) ListenURL() string {
	if s.listener == nil {
		return ""
	}
	if taddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		if taddr.IP.IsUnspecified() {
			return fmt.Sprintf("http://localhost:%d", taddr.Port)
		}
		return fmt.Sprintf("http://%s", s.listener.Addr())
	}
	return ""
}

// HandleFunc registers a handler function for pattern.
func (s *Server) HandleFunc(pattern string, fn func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(pattern, fn)
}

// Handle registers a handler for pattern.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// ServeHTTP implements http.Handler, gating concurrent execution at
// MaxThreads and logging each request when verbose is set.
func (s *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	s.gate.Start()
	defer s.gate.Done()

	reqID := uuid.NewString()
	rw.Header().Set("X-Request-Id", reqID)

	var n int64
	if s.verbose {
		s.mu.Lock()
		s.reqs++
		n = s.reqs
		s.mu.Unlock()
		s.printf("request #%d [%s]: %s %s (from %s)", n, reqID, req.Method, req.RequestURI, req.RemoteAddr)
		rw = &trackResponseWriter{ResponseWriter: rw}
	}

	s.mux.ServeHTTP(rw, req)

	if s.verbose {
		tw := rw.(*trackResponseWriter)
		s.printf("request #%d [%s]: %s %s = code %d, %d bytes", n, reqID, req.Method, req.RequestURI, tw.code, tw.resSize)
	}
}

type trackResponseWriter struct {
	http.ResponseWriter
	code    int
	resSize int64
}

func (tw *trackResponseWriter) WriteHeader(code int) {
	tw.code = code
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackResponseWriter) Write(p []byte) (int, error) {
	if tw.code == 0 {
		tw.code = http.StatusOK
	}
	tw.resSize += int64(len(p))
	return tw.ResponseWriter.Write(p)
}

// Listen binds addr for later use by Serve.
func (s *Server) Listen(addr string) error {
	if s.listener != nil {
		return nil
	}
	if addr == "" {
		return fmt.Errorf("httpserver: a <host>:<port> address is required")
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpserver: failed to listen on %s: %w", addr, err)
	}
	s.listener = l
	s.printf("listening on %s", s.ListenURL())
	return nil
}

// Serve blocks, accepting connections on the address bound by Listen
// and dispatching them through ServeHTTP.
func (s *Server) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("httpserver: Listen must be called before Serve")
	}
	srv := &http.Server{
		Handler:      s,
		ReadTimeout:  s.ConnTimeout,
		WriteTimeout: s.ConnTimeout,
	}
	http2.ConfigureServer(srv, &s.H2Server)
	return srv.Serve(s.listener)
}
