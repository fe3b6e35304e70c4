// Package authz is a small authorization handshake built on chain.
//
// A client connects, sends its name and reads back "OK" when the name
// is allowed or "DENIED" otherwise.  The server closes the connection
// after replying.
package authz

import (
	"strings"
	"sync/atomic"

	"netchain/chain"
	"netchain/util"
)

// Replies written by the server.
const (
	ReplyOK     = "OK"
	ReplyDenied = "DENIED"
)

// DefaultMaxMessage bounds the name a client may send.
const DefaultMaxMessage = 1024

// Server answers authorization requests on connections handed to
// OnAccept.  Register it with chain.Processor.AddListener.
type Server struct {
	names      map[string]struct{}
	maxMessage int
	logger     *util.Logger

	granted atomic.Int64
	denied  atomic.Int64
	dropped atomic.Int64
}

// NewServer allows the given names.  maxMessage <= 0 selects
// DefaultMaxMessage.
func NewServer(names []string, maxMessage int, logger *util.Logger) *Server {
	if maxMessage <= 0 {
		maxMessage = DefaultMaxMessage
	}
	s := &Server{
		names:      make(map[string]struct{}, len(names)),
		maxMessage: maxMessage,
		logger:     logger,
	}
	for _, n := range names {
		s.names[n] = struct{}{}
	}
	return s
}

// OnAccept is the listener continuation.
func (s *Server) OnAccept(c *chain.Conn, err error) {
	if err != nil {
		s.logger.Warn("authz: accept failed: %v", err)
		c.Shutdown()
		return
	}
	s.logger.Verbose("authz: connection from %s", c.RemoteAddr())
	chain.AsyncReadAtLeast(c, s.onRequest, 1, s.maxMessage)
}

func (s *Server) onRequest(c *chain.Conn, err error) {
	if err != nil {
		// Peer went away before sending a name.
		s.dropped.Add(1)
		s.logger.Verbose("authz: %s: read: %v", c.RemoteAddr(), err)
		c.Shutdown()
		return
	}

	name := strings.TrimRight(string(c.Data), "\r\n")
	reply := ReplyDenied
	if s.Allowed(name) {
		reply = ReplyOK
		s.granted.Add(1)
		s.logger.Info("authz: granted %q to %s", name, c.RemoteAddr())
	} else {
		s.denied.Add(1)
		s.logger.Warn("authz: denied %q from %s", name, c.RemoteAddr())
	}

	c.Data = append(c.Data[:0], reply...)
	chain.AsyncWrite(c, s.onReplied)
}

func (s *Server) onReplied(c *chain.Conn, err error) {
	if err != nil {
		s.logger.Verbose("authz: %s: write: %v", c.RemoteAddr(), err)
	}
	c.Shutdown()
}

// Allowed reports whether name would be granted.
func (s *Server) Allowed(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Granted, Denied and Dropped count completed exchanges by outcome.
func (s *Server) Granted() int64 { return s.granted.Load() }
func (s *Server) Denied() int64 { return s.denied.Load() }
func (s *Server) Dropped() int64 { return s.dropped.Load() }
