package wsstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server serves the frame stream on /frames and a JSON snapshot of the
// running sessions on /sessions.
type Server struct {
	log    *zap.Logger
	listen string
	source FrameSource
	opts   []HandlerOption

	ready chan struct{}
	addr  net.Addr
}

func NewServer(log *zap.Logger, listen string, source FrameSource, opts ...HandlerOption) *Server {
	return &Server{
		log:    log,
		listen: listen,
		source: source,
		opts:   opts,
		ready:  make(chan struct{}),
	}
}

func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address. Valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/frames", NewHandler(s.log, s.source, s.opts...))
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(s.source.Sessions())
		if err != nil {
			s.log.Debug("failed to write sessions", zap.Error(err))
		}
	})
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}
	s.addr = ln.Addr()
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errC := make(chan error, 1)
	go func() {
		errC <- srv.Serve(ln)
	}()
	close(s.ready)
	s.log.Info("Frame stream listening", zap.Stringer("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("failed to shut down frame stream: %w", err)
		}
		return nil
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
