// Package openflow accepts OpenFlow 1.3 switch connections and translates
// between the wire protocol and the controller's events and commands.
package openflow

import (
	"OFSpectra/internal/model"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultHandshakeTimeout bounds the Hello/Features exchange.
const DefaultHandshakeTimeout = 3 * time.Second

// Handler consumes the events produced by switch connections. Events of one
// connection are delivered sequentially.
type Handler interface {
	Dispatch(ev model.Event) error
}

// Server is the controller's OpenFlow listener.
type Server struct {
	addr             string
	handshakeTimeout time.Duration
	handler          Handler

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(addr string, handshakeTimeout time.Duration, handler Handler) *Server {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	return &Server{
		addr:             addr,
		handshakeTimeout: handshakeTimeout,
		handler:          handler,
		conns:            make(map[*conn]struct{}),
	}
}

// ListenAndServe listens on the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.addr)
	}
	return s.Serve(l)
}

// Serve accepts switch connections on l until Close is called.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrClosed
	}
	s.listener = l
	s.mu.Unlock()

	log.Printf("OpenFlow listener started on %s", l.Addr())
	for {
		nc, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return errors.Wrap(err, "accept failed")
		}
		s.wg.Add(1)
		go s.handleConnection(nc)
	}
}

// Addr returns the listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) handleConnection(nc net.Conn) {
	defer s.wg.Done()
	log.WithField("remote", nc.RemoteAddr()).Info("New switch connection.")

	c := newConn(nc)
	if !s.track(c) {
		c.Close()
		return
	}
	defer s.untrack(c)
	defer c.Close()

	features, err := c.handshake(s.handshakeTimeout)
	if err != nil {
		log.WithField("remote", nc.RemoteAddr()).Warnf("OpenFlow handshake failed: %v", err)
		return
	}
	dpid, err := dpidFromFeatures(features.DPID)
	if err != nil {
		log.WithField("remote", nc.RemoteAddr()).Warnf("Invalid features reply: %v", err)
		return
	}
	c.dpid = dpid

	err = s.handler.Dispatch(model.FeaturesReplyEvent{
		DPID:       dpid,
		NumBuffers: features.Buffers,
		NumTables:  features.NumTables,
		Datapath:   c,
	})
	if err != nil {
		log.WithField("dpid", dpid).Errorf("Switch setup failed, closing connection: %v", err)
		return
	}

	err = c.receive(func(ev model.Event) {
		if err := s.handler.Dispatch(ev); err != nil {
			log.WithField("dpid", dpid).Warnf("Failed to handle %T: %v", ev, err)
		}
	})
	c.Close()
	s.handler.Dispatch(model.DisconnectEvent{DPID: dpid, Datapath: c, Err: err})
}

// Close stops accepting connections, closes every open connection and waits
// for their handlers to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
	log.Println("OpenFlow listener stopped.")
	return err
}
