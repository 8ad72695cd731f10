package ipc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Handler processes one request message and returns the response. Returning
// a nil message closes the connection.
type Handler interface {
	HandleMessage(ctx context.Context, msg *Message) (*Message, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *Message) (*Message, error)

// HandleMessage implements Handler.
func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	return f(ctx, msg)
}

// ServerConfig holds server settings.
type ServerConfig struct {
	SocketPath  string
	MaxClients  int
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Server is the daemon-side control socket.
type Server struct {
	cfg      ServerConfig
	handler  Handler
	listener net.Listener
	log      *slog.Logger

	mu      sync.Mutex
	clients map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a control server. Start must be called to listen.
func NewServer(cfg ServerConfig, handler Handler) *Server {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 8
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     log,
		clients: make(map[net.Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start listens on the configured socket and begins accepting clients. The
// socket is created user-only; clients are additionally checked against the
// daemon's uid where the platform supports it.
func (s *Server) Start() error {
	ln, err := listen(s.cfg.SocketPath)
	if err != nil {
		return err
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	s.log.Info("control socket listening", "path", s.cfg.SocketPath)
	return nil
}

// Stop closes the listener and all client connections.
func (s *Server) Stop() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	cleanupSocket(s.cfg.SocketPath)
	return err
}

// SocketPath returns the socket this server listens on.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		if ok, err := peerIsSameUser(conn); err == nil && !ok {
			s.log.Warn("rejected connection from another user")
			conn.Close()
			continue
		}

		s.mu.Lock()
		if len(s.clients) >= s.cfg.MaxClients {
			s.mu.Unlock()
			s.log.Warn("rejected connection, client limit reached")
			conn.Close()
			continue
		}
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		msg, err := ReadMessage(conn)
		if err != nil {
			return
		}

		resp, err := s.dispatch(msg)
		if err != nil {
			s.log.Error("handler failed", "type", msg.Header.Type, "error", err)
			resp, _ = Encode(MsgError, msg.Header.RequestID, &ErrorResponse{
				Code:    ErrInternalError,
				Message: err.Error(),
			})
		}
		if resp == nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := resp.Write(conn); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(msg *Message) (*Message, error) {
	// Ping is answered here so every handler gets liveness for free.
	if msg.Header.Type == MsgPing {
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil
	}
	return s.handler.HandleMessage(s.ctx, msg)
}
