package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/wf-filters/internal/logger"
)

// DefaultRequestTimeout bounds how long a request waits for the render
// thread.
const DefaultRequestTimeout = 5 * time.Second

// Handler serves one method. A returned error becomes an error reply.
type Handler func(p Params) (Response, error)

// Dispatcher runs fn on the thread that owns the compositor state.
type Dispatcher interface {
	Invoke(ctx context.Context, fn func()) error
}

// Options configures a Server.
type Options struct {
	MaxMessageSize uint32
	RequestTimeout time.Duration
}

// Server listens on a unix socket and serves registered methods. Handlers
// run through the Dispatcher, one at a time.
type Server struct {
	addr       string
	dispatcher Dispatcher
	opts       Options
	log        *zap.Logger

	mu      sync.RWMutex
	methods map[string]Handler

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer creates a server for the socket at addr. A nil dispatcher runs
// handlers on the connection goroutine.
func NewServer(addr string, dispatcher Dispatcher, opts Options) *Server {
	if opts.MaxMessageSize == 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &Server{
		addr:       addr,
		dispatcher: dispatcher,
		opts:       opts,
		log:        logger.Named("ipc"),
		methods:    make(map[string]Handler),
		quit:       make(chan struct{}),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Addr returns the socket path.
func (s *Server) Addr() string { return s.addr }

// Register adds or replaces the handler for method.
func (s *Server) Register(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = h
}

// Unregister removes method.
func (s *Server) Unregister(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.methods, method)
}

// Methods returns the registered method names, sorted.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.methods))
	for m := range s.methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Start removes any stale socket, listens and starts accepting.
func (s *Server) Start() error {
	if err := os.RemoveAll(s.addr); err != nil {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	l, err := net.Listen("unix", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listener = l
	s.wg.Add(1)
	go s.acceptLoop()
	s.log.Info("control socket listening", zap.String("socket", s.addr))
	return nil
}

// Serve starts the server and blocks until ctx is done, then stops it.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}

		s.track(conn, true)
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.track(c, false)
			defer c.Close()
			s.serveConn(c)
		}(conn)
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func (s *Server) serveConn(c net.Conn) {
	log := s.log
	if cred, ok := peerCredentials(c); ok {
		log = log.With(zap.Int32("pid", cred.PID), zap.Uint32("uid", cred.UID))
	}
	log.Debug("client connected")
	defer log.Debug("client disconnected")

	for {
		body, err := ReadMessage(c, s.opts.MaxMessageSize)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("failed to read request", zap.Error(err))
			}
			return
		}
		resp := s.handle(body, log)
		if err := WriteMessage(c, resp); err != nil {
			log.Warn("failed to write reply", zap.Error(err))
			return
		}
	}
}

func (s *Server) handle(body []byte, log *zap.Logger) Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Fail(fmt.Sprintf("Invalid request: %v", err))
	}
	if req.Data == nil {
		req.Data = Params{}
	}

	s.mu.RLock()
	h, ok := s.methods[req.Method]
	s.mu.RUnlock()
	if !ok {
		log.Debug("unknown method", zap.String("method", req.Method))
		return Fail("No such method found!")
	}

	start := time.Now()
	resp, err := s.call(h, req.Data)
	log.Debug("request served",
		zap.String("method", req.Method),
		zap.Duration("took", time.Since(start)),
		zap.Bool("ok", err == nil))
	if err != nil {
		return Fail(err.Error())
	}
	if resp == nil {
		resp = OK()
	}
	return resp
}

// call runs h through the dispatcher. A dispatch error means h never ran.
func (s *Server) call(h Handler, p Params) (Response, error) {
	if s.dispatcher == nil {
		return h(p)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	var (
		resp Response
		herr error
	)
	if err := s.dispatcher.Invoke(ctx, func() {
		resp, herr = h(p)
	}); err != nil {
		return nil, fmt.Errorf("request not served: %w", err)
	}
	return resp, herr
}

// Stop closes the listener and every open connection, then waits for
// connection goroutines or ctx.
func (s *Server) Stop(ctx context.Context) error {
	select {
	case <-s.quit:
		return nil
	default:
		close(s.quit)
	}

	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.connMu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		<-done
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("control socket closed", zap.String("socket", s.addr))
	return nil
}
