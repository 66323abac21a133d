// Package server implements the TCP front end: accept connections, frame
// one request per connection through the worker pool, dispatch to an
// engine, write one response (spec.md §4.5).
package server

import (
	"errors"
	"io"
	"net"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamsxin/kvs"
	"github.com/dreamsxin/kvs/pool"
	"github.com/dreamsxin/kvs/proto"
	"github.com/dreamsxin/kvs/storage"
)

// Server accepts connections on a listener and dispatches each to a
// worker pool job that runs one request against an engine handle.
type Server struct {
	engine storage.Engine
	pool   pool.Pool
	logger log.Logger
}

// New constructs a Server. engine is expected to be a cheap, shareable
// handle (spec.md §4.1); the same value is reused by every job since the
// engine itself serializes concurrent access.
func New(engine storage.Engine, p pool.Pool, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{engine: engine, pool: p, logger: logger}
}

// Run binds addr and accepts connections until the listener is closed;
// any other Accept error is logged and the loop goes on. Each accepted connection is
// handled by a pool job; Run itself never blocks on a job, so the accept
// loop cannot be starved by a slow or stuck request.
func (s *Server) Run(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return kvs.WrapIO(err)
	}
	defer ln.Close()

	level.Info(s.logger).Log("msg", "listening", "addr", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			level.Error(s.logger).Log("msg", "accept error", "err", err)
			continue
		}
		s.pool.Spawn(func() { s.handle(conn) })
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	req, err := proto.ReadRequest(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			level.Error(s.logger).Log("msg", "request decode error", "err", err)
		}
		return
	}

	resp := s.dispatch(req)

	if err := proto.WriteResponse(conn, resp); err != nil {
		level.Error(s.logger).Log("msg", "response encode error", "err", err)
	}
}

func (s *Server) dispatch(req proto.Request) proto.Response {
	switch req.Op {
	case proto.OpSet:
		if err := s.engine.Set(req.Key, req.Value); err != nil {
			return proto.Err(err.Error())
		}
		return proto.OkAbsent()

	case proto.OpGet:
		value, ok, err := s.engine.Get(req.Key)
		if err != nil {
			return proto.Err(err.Error())
		}
		if !ok {
			return proto.OkAbsent()
		}
		return proto.OkValue(value)

	case proto.OpRemove:
		if err := s.engine.Remove(req.Key); err != nil {
			return proto.Err(err.Error())
		}
		return proto.OkAbsent()

	default:
		return proto.Err("unknown operation: " + string(req.Op))
	}
}
