// Package server accepts TCP connections and dispatches one-shot request
// handlers onto a worker pool. The protocol is strictly one request, one
// response, close; clients reconnect per request.
package server

import (
	"bufio"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nicolagi/kvs/internal/engine"
	"github.com/nicolagi/kvs/internal/kverr"
	"github.com/nicolagi/kvs/internal/netutil"
	"github.com/nicolagi/kvs/internal/pool"
	"github.com/nicolagi/kvs/internal/protocol"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	engine engine.Engine
	pool   pool.Pool
}

func New(e engine.Engine, p pool.Pool) *Server {
	return &Server{engine: e, pool: p}
}

// Run binds addr and starts the accept loop on its own goroutine. Each
// accepted connection is handed to the pool. The returned handle stops the
// loop; the loop shuts the pool down on its way out.
func (s *Server) Run(addr string, lg *log.Entry) (*Shutdown, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, kverr.Wrapf(err, kverr.IO, "binding %q", addr)
	}
	h := &Shutdown{listener: listener, done: make(chan struct{})}
	go s.acceptLoop(h, lg)
	return h, nil
}

func (s *Server) acceptLoop(h *Shutdown, lg *log.Entry) {
	defer close(h.done)
	defer func() { _ = h.listener.Close() }()
	for {
		conn, err := h.listener.Accept()
		if h.stop.Load() {
			if err == nil {
				_ = conn.Close()
			}
			break
		}
		if err != nil {
			lg.WithField("cause", err).Warning("Could not accept connection")
			continue
		}
		clg := lg.WithFields(log.Fields{
			"conn":   uuid.New().String(),
			"remote": conn.RemoteAddr().String(),
		})
		e := s.engine
		s.pool.Spawn(func() { handle(e, conn, clg) })
	}
	lg.Info("Stopped accepting connections")
	s.pool.Shutdown()
}

// Shutdown is the handle returned by Run.
type Shutdown struct {
	stop     atomic.Bool
	listener net.Listener
	done     chan struct{}
}

// Addr returns the bound address, useful when Run was given port 0.
func (h *Shutdown) Addr() string {
	return h.listener.Addr().String()
}

// DoShutdown stops the accept loop. The loop blocks in Accept and only
// re-checks the flag per connection, so this also self-dials the listener
// to wake it; a quiescent server still terminates.
func (h *Shutdown) DoShutdown() {
	if !h.stop.CompareAndSwap(false, true) {
		return
	}
	_ = netutil.Poke(h.Addr())
}

// Wait blocks until the accept loop has exited and the pool shutdown has
// been requested. In-flight handlers may still be completing.
func (h *Shutdown) Wait() {
	<-h.done
}

// handle serves one connection: read one line, parse, dispatch, answer,
// close. Failures are answered with the error's kind; they never propagate.
func handle(e engine.Engine, conn net.Conn, lg *log.Entry) {
	defer func() { _ = conn.Close() }()
	start := time.Now()
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		lg.WithField("cause", err).Warning("Could not read request")
		return
	}
	op := "invalid"
	var resp protocol.Response
	req, err := protocol.ParseRequest(line)
	if err != nil {
		resp = protocol.Fail(err)
		requestErrors.WithLabelValues(kverr.KindOf(err).String()).Inc()
	} else {
		op = req.Op.String()
		resp = process(e, req, lg)
		if resp.Error {
			requestErrors.WithLabelValues(resp.Text).Inc()
		}
	}
	if _, err := conn.Write([]byte(resp.String())); err != nil {
		lg.WithField("cause", err).Warning("Could not write response")
		return
	}
	requestsTotal.WithLabelValues(op).Inc()
	requestDuration.Observe(time.Since(start).Seconds())
	lg.WithFields(log.Fields{
		"op":       op,
		"duration": time.Since(start),
	}).Debug("Served request")
}

func process(e engine.Engine, req protocol.Request, lg *log.Entry) protocol.Response {
	switch req.Op {
	case protocol.OpGet:
		value, found, err := e.Get(req.Key)
		if err != nil {
			if kverr.IsKind(err, kverr.Index) {
				lg.WithFields(log.Fields{
					"key":   req.Key,
					"cause": err,
				}).Error("Index does not agree with the log, store may be corrupt")
			}
			return protocol.Fail(err)
		}
		if !found {
			return protocol.Fail(kverr.New(kverr.KeyNotFound))
		}
		return protocol.OK(value)
	case protocol.OpSet:
		if err := e.Set(req.Key, req.Value); err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK("")
	case protocol.OpRemove:
		if err := e.Remove(req.Key); err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK("")
	}
	return protocol.Fail(kverr.New(kverr.InvalidArgument))
}
