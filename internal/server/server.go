// Package server serves the tap stream: every broadcast message is written
// to each connected TCP client as a length-delimited protobuf frame.
//
// The tap is read-only. Clients never send requests; anything they write is
// discarded, and a read error ends the session.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/broadcast"
	"github.com/xtxerr/binwatch/internal/logging"
	"github.com/xtxerr/binwatch/internal/wire"
)

var log = logging.Component("tap")

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Hub is the message source (required).
	Hub *broadcast.Hub

	// Listen is the address to listen on (e.g., "127.0.0.1:9161").
	Listen string
}

// =============================================================================
// Server
// =============================================================================

// Server is the tap stream server.
type Server struct {
	cfg      *Config
	hub      *broadcast.Hub
	listener net.Listener

	mu    sync.Mutex
	ready chan struct{}
	wg    sync.WaitGroup
}

// New creates a new server.
func New(cfg *Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultTapListenAddress
	}
	return &Server{
		cfg:   cfg,
		hub:   cfg.Hub,
		ready: make(chan struct{}),
	}
}

// Run listens and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	close(s.ready)
	s.mu.Unlock()

	log.Info("tap listening", "address", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				log.Info("tap stopped")
				return nil
			default:
				log.Error("accept error", "error", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// Addr returns the listen address once the server is serving.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr()
}

// =============================================================================
// Connection Handling
// =============================================================================

// handleConn streams hub messages to one client.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()
	sub := s.hub.Subscribe("tap")
	log.Info("tap session opened", "subscriber_id", sub.ID, "remote", remote)

	w := wire.NewWriter(conn)

	// Reader goroutine: detects disconnect.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		io.Copy(io.Discard, conn)
	}()

	defer func() {
		sub.Close()
		conn.Close()
		<-gone
		log.Info("tap session closed",
			"subscriber_id", sub.ID,
			"remote", remote,
			"dropped", sub.Dropped())
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if err := w.Write(msg); err != nil {
				log.Debug("write failed, closing session", "subscriber_id", sub.ID, "error", err)
				return
			}
		}
	}
}
