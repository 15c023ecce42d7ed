// Package serverutil runs an http.Server under a context so callers get
// listener setup, optional TLS, and bounded graceful shutdown in one place.
package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// TLSConfig names the certificate and key files for a TLS listener. Both
// fields must be set together.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Config describes how Run hosts the server. Ready, when non-nil, is closed
// once the listener is accepting connections.
type Config struct {
	Server          *http.Server
	TLS             TLSConfig
	ShutdownTimeout time.Duration
	Ready           chan<- struct{}
}

// DefaultShutdownTimeout bounds graceful shutdown when the context is cancelled.
const DefaultShutdownTimeout = 10 * time.Second

// Run binds the server's address and serves until the context is cancelled or
// the server fails. On cancellation it drains in-flight requests for at most
// ShutdownTimeout before returning.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Server == nil {
		return fmt.Errorf("server is required")
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return fmt.Errorf("both TLS cert file and key file must be provided")
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return err
	}
	if cfg.TLS.CertFile != "" {
		ln, err = wrapTLSListener(ln, cfg.Server, cfg.TLS)
		if err != nil {
			return err
		}
	}

	if cfg.Ready != nil {
		close(cfg.Ready)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- cfg.Server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	return drain(cfg.Server, serveErr, shutdownTimeout(cfg))
}

func shutdownTimeout(cfg Config) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return DefaultShutdownTimeout
}

// wrapTLSListener loads the keypair and layers TLS over the TCP listener. The
// server's own TLSConfig is cloned so version and cipher settings survive; the
// loaded certificate is prepended to any it already carries. The inner
// listener is closed on failure.
func wrapTLSListener(ln net.Listener, srv *http.Server, cfg TLSConfig) (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		ln.Close()
		return nil, err
	}

	tlsCfg := srv.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	} else {
		tlsCfg = tlsCfg.Clone()
	}
	tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
	srv.TLSConfig = tlsCfg

	return tls.NewListener(ln, tlsCfg), nil
}

// drain shuts the server down and waits for Serve to return, bounded by the
// timeout. A Serve error other than ErrServerClosed wins over the shutdown
// result.
func drain(srv *http.Server, serveErr <-chan error, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-shutdownCtx.Done():
		if shutdownErr != nil {
			return shutdownErr
		}
		return shutdownCtx.Err()
	}

	return shutdownErr
}
