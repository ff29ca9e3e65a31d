package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/gunnet/internal/config"
	"github.com/udisondev/gunnet/internal/constants"
	"github.com/udisondev/gunnet/internal/crypto"
	"github.com/udisondev/gunnet/internal/protocol"
)

const (
	keepAlivePeriod = 30 * time.Second
	floodPruneEvery = time.Minute
)

// Server accepts TCP clients and runs a Connection for each of them.
type Server struct {
	cfg      config.Server
	codec    *protocol.Codec
	handler  Handler
	guard    *FloodGuard
	readPool *BytePool

	active atomic.Int64

	listener net.Listener
	mu       sync.Mutex
}

// NewServer builds the frame codec from cfg and creates a server dispatching to handler.
func NewServer(cfg config.Server, handler Handler) (*Server, error) {
	if handler == nil {
		return nil, errors.New("nil packet handler")
	}
	key, err := cfg.Crypto.HeaderKeyBytes()
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.NewHeaderCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating header cipher: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		codec:    protocol.NewCodec(crypto.NewHeaderCodec(cipher), cfg.MaxBlocks),
		handler:  handler,
		readPool: NewBytePool(constants.DefaultReadBufSize),
	}
	if cfg.FloodProtection {
		s.guard = NewFloodGuard(cfg.ConnectionRate, cfg.ConnectionBurst, cfg.MaxConnectionPerIP)
	}
	return s, nil
}

// Codec returns the frame codec shared by all connections.
func (s *Server) Codec() *protocol.Codec {
	return s.codec
}

// ActiveConnections returns the number of running connections.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

// Addr returns the listening address, or nil before Run/Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting. Running connections end when the Serve context is cancelled.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on cfg.BindAddress:cfg.Port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln and waits for every connection to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	if s.guard != nil {
		wg.Go(func() {
			ticker := time.NewTicker(floodPruneEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := s.guard.Prune(floodPruneEvery); n > 0 {
						slog.Debug("flood guard pruned", "entries", n)
					}
				}
			}
		})
	}

	slog.Info("server started", "address", ln.Addr(), "role", s.cfg.Crypto.Role)
	s.acceptLoop(ctx, &wg, ln)
	wg.Wait()
	slog.Info("server stopped", "address", ln.Addr())
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, wg *sync.WaitGroup, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			slog.Error("failed to accept new connection", "err", err)
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			if err := tcpConn.SetKeepAlive(true); err != nil {
				slog.Warn("set keepalive failed", "err", err)
			}
			if err := tcpConn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
				slog.Warn("set keepalive period failed", "err", err)
			}
		}

		wg.Go(func() {
			s.handleConnection(ctx, conn)
		})
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	c, err := NewConnection(conn, s.codec, s.handler, Options{
		ReadTimeout:         s.cfg.ReadTimeout,
		WriteTimeout:        s.cfg.WriteTimeout,
		SendQueueSize:       s.cfg.SendQueueSize,
		MaxChecksumFailures: s.cfg.MaxChecksumFailures,
		ReadPool:            s.readPool,
	})
	if err != nil {
		slog.Error("failed to create connection", "remote", conn.RemoteAddr(), "err", err)
		conn.Close()
		return
	}

	if s.guard != nil {
		if !s.guard.Allow(c.IP()) {
			slog.Warn("connection rejected by flood guard", "remote", c.IP())
			c.Close()
			return
		}
		defer s.guard.Release(c.IP())
	}

	s.active.Add(1)
	defer s.active.Add(-1)

	slog.Info("new connection", "remote", c.IP(), "id", c.ID())
	if err := c.Run(ctx); err != nil {
		slog.Warn("connection closed with error", "remote", c.IP(), "id", c.ID(), "err", err)
		return
	}
	slog.Info("connection closed", "remote", c.IP(), "id", c.ID())
}
