package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultReadTimeout = 60 * time.Second
	// uploads of long recordings need more time than the read side
	DefaultWriteTimeout    = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	gracefulEnvironKey   = "VOICEBLOOM_GRACEFUL"
	gracefulEnvironValue = gracefulEnvironKey + "=1"
	gracefulListenerFD   = 3
)

// GraceOptions tune a Server. Zero durations use the defaults.
type GraceOptions struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// BeforeDrain runs when a stop is requested, while requests are still
	// in flight. Cancelling the base context here ends open event streams.
	BeforeDrain []func()
	// AfterDrain runs once every request has finished.
	AfterDrain []func()
}

// Server wraps http.Server with signal driven shutdown and SIGUSR2 restart
// that hands the listening socket to a new process.
type Server struct {
	*http.Server

	opts       GraceOptions
	listener   net.Listener
	isGraceful bool
	signalChan chan os.Signal
	done       chan struct{}
}

// NewServer creates a Server whose request contexts derive from base.
func NewServer(base context.Context, addr string, handler http.Handler, opts GraceOptions) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Server{
		Server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			BaseContext:  func(net.Listener) context.Context { return base },
		},
		opts:       opts,
		isGraceful: os.Getenv(gracefulEnvironKey) != "",
		signalChan: make(chan os.Signal, 1),
		done:       make(chan struct{}),
	}
}

// ListenAndServe listens on Addr, or on the socket inherited from a parent
// during a restart, and serves until stopped.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := srv.getNetListener(addr)
	if err != nil {
		return err
	}
	return srv.ServeListener(ln)
}

// ServeListener serves on ln until a stop signal or Stop. It returns after
// shutdown hooks have run; a clean stop returns nil.
func (srv *Server) ServeListener(ln net.Listener) error {
	srv.listener = ln
	signal.Notify(srv.signalChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR2)
	go srv.handleSignals()

	err := srv.Server.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		signal.Stop(srv.signalChan)
		return err
	}
	<-srv.done
	return nil
}

// Stop requests the same graceful shutdown as SIGTERM.
func (srv *Server) Stop() {
	select {
	case srv.signalChan <- syscall.SIGTERM:
	default:
	}
}

func (srv *Server) getNetListener(addr string) (net.Listener, error) {
	if srv.isGraceful {
		file := os.NewFile(gracefulListenerFD, "")
		ln, err := net.FileListener(file)
		if err != nil {
			return nil, fmt.Errorf("net.FileListener error: %w", err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.Listen error: %w", err)
	}
	return ln, nil
}

func (srv *Server) handleSignals() {
	defer signal.Stop(srv.signalChan)
	for sig := range srv.signalChan {
		switch sig {
		case syscall.SIGTERM, syscall.SIGINT:
			Logger.Info("graceful shutdown", zap.String("signal", sig.String()))
			srv.shutdown()
			return
		case syscall.SIGUSR2:
			pid, err := srv.startNewProcess()
			if err != nil {
				Logger.Error("graceful restart failed, continue serving", zap.Error(err))
				continue
			}
			Logger.Info("graceful restart, new process started", zap.Int("pid", pid))
			srv.shutdown()
			return
		}
	}
}

func (srv *Server) shutdown() {
	defer close(srv.done)
	for _, fn := range srv.opts.BeforeDrain {
		fn()
	}
	ctx, cancel := context.WithTimeout(context.Background(), srv.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		Logger.Info("HTTP server shutdown success")
	}
	for _, fn := range srv.opts.AfterDrain {
		fn()
	}
}

// startNewProcess re-executes the binary with the listening socket as fd 3.
func (srv *Server) startNewProcess() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is not *net.TCPListener")
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("get listener file: %w", err)
	}

	envs := []string{}
	for _, e := range os.Environ() {
		if e != gracefulEnvironValue {
			envs = append(envs, e)
		}
	}
	envs = append(envs, gracefulEnvironValue)

	attr := &syscall.ProcAttr{
		Env:   envs,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	}
	pid, err := syscall.ForkExec(os.Args[0], os.Args, attr)
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return pid, nil
}

// GraceServer serves handler on addr until SIGTERM or SIGINT.
func GraceServer(base context.Context, addr string, handler http.Handler, opts GraceOptions) error {
	return NewServer(base, addr, handler, opts).ListenAndServe()
}
