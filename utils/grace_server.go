package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultReadTimeout       = 60 * time.Second
	defaultWriteTimeout      = defaultReadTimeout
	defaultShutdownTimeout   = 30 * time.Second

	// A restarted child finds the inherited listener on fd 3 when this variable is set.
	gracefulEnvKey     = "IS_GRACEFUL"
	gracefulEnvValue   = gracefulEnvKey + "=1"
	gracefulListenerFD = 3
)

// Server wraps http.Server with signal driven shutdown and SIGUSR2 hand-over restarts.
type Server struct {
	*http.Server

	mu              sync.Mutex
	listener        net.Listener
	inherit         bool
	shutdownTimeout time.Duration
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			ReadTimeout:       defaultReadTimeout,
			WriteTimeout:      defaultWriteTimeout,
		},
		inherit:         os.Getenv(gracefulEnvKey) != "",
		shutdownTimeout: shutdownTimeout,
	}
}

// OnShutdown registers fn to run when the server begins shutting down. Websocket
// connections are hijacked, so their owners must close them here.
func (srv *Server) OnShutdown(fn func()) {
	srv.RegisterOnShutdown(fn)
}

// ListenerAddr returns the bound address once Run has started listening.
func (srv *Server) ListenerAddr() net.Addr {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// ListenAndServe serves until SIGINT/SIGTERM and returns after shutdown has completed.
func (srv *Server) ListenAndServe() error {
	return srv.Run(context.Background())
}

// Run serves until ctx is cancelled or a stop signal arrives, then shuts down within the
// configured timeout. A clean shutdown returns nil.
func (srv *Server) Run(ctx context.Context) error {
	ln, err := srv.listen()
	if err != nil {
		return err
	}
	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()
	return srv.serve(ctx)
}

func (srv *Server) serve(ctx context.Context) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	served := make(chan error, 1)
	go func() { served <- srv.Server.Serve(srv.listener) }()

	for {
		select {
		case err := <-served:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			Sugar.Infow("context cancelled, shutting down HTTP server")
			return srv.shutdown(served)
		case sig := <-sigs:
			if sig != syscall.SIGUSR2 {
				Sugar.Infow("signal received, shutting down HTTP server", "signal", sig.String())
				return srv.shutdown(served)
			}
			pid, err := srv.startNewProcess()
			if err != nil {
				Sugar.Errorw("graceful restart failed, still serving", "error", err)
				continue
			}
			Sugar.Infow("graceful restart handed over listener", "pid", pid)
			return srv.shutdown(served)
		}
	}
}

func (srv *Server) shutdown(served <-chan error) error {
	ctx, cancel := context.WithTimeout(context.Background(), srv.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Sugar.Errorw("HTTP server shutdown incomplete", "error", err)
		return err
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	Sugar.Infow("HTTP server stopped")
	return nil
}

func (srv *Server) listen() (net.Listener, error) {
	if srv.inherit {
		ln, err := net.FileListener(os.NewFile(gracefulListenerFD, "listener"))
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		return ln, nil
	}
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

// startNewProcess hands the listening socket to a fresh copy of this binary.
func (srv *Server) startNewProcess() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is %T, not *net.TCPListener", srv.listener)
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}
	defer file.Close()

	env := make([]string, 0, len(os.Environ())+1)
	for _, e := range os.Environ() {
		if e != gracefulEnvValue {
			env = append(env, e)
		}
	}
	env = append(env, gracefulEnvValue)

	pid, err := syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	})
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return pid, nil
}
