package tor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout is how long Start waits for Tor to bootstrap.
const DefaultStartupTimeout = 3 * time.Minute

// EmbeddedTor runs a private Tor daemon for the duration of a crawl.
// Bootstrapping usually takes one to three minutes.
type EmbeddedTor struct {
	process     *tornago.TorProcess
	socksAddr   string
	controlAddr string

	startupTimeout time.Duration
	logger         *slog.Logger
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// WithTorLogger sets the logger for daemon lifecycle events.
func WithTorLogger(logger *slog.Logger) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.logger = logger
	}
}

// NewEmbeddedTor creates a new embedded Tor manager.
// Call Start() to actually launch the Tor daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		startupTimeout: DefaultStartupTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon on OS-assigned ports and blocks until it has
// bootstrapped, the startup timeout expires or ctx is done. A daemon that
// finishes starting after ctx is done is stopped in the background.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	type startResult struct {
		process *tornago.TorProcess
		err     error
	}
	done := make(chan startResult, 1)
	go func() {
		process, err := tornago.StartTorDaemon(launchCfg)
		done <- startResult{process, err}
	}()

	e.logger.Info("starting embedded Tor daemon", "startup_timeout", e.startupTimeout)

	select {
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("failed to start embedded Tor daemon: %w", r.err)
		}
		e.process = r.process
		e.socksAddr = r.process.SocksAddr()
		e.controlAddr = r.process.ControlAddr()
		e.logger.Info("embedded Tor daemon started", "socks_addr", e.socksAddr)
		return nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.process != nil {
				_ = r.process.Stop() //nolint:errcheck // Best effort cleanup
			}
		}()
		return ctx.Err()
	}
}

// Stop shuts the daemon down. It is safe to call on an unstarted instance
// and more than once.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}

	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	e.controlAddr = ""
	e.logger.Info("embedded Tor daemon stopped")
	return err
}

// SocksAddr returns the SOCKS5 address ("host:port") of the running
// daemon, or "" when it is not running.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// ControlAddr returns the control port address, or "" when not running.
func (e *EmbeddedTor) ControlAddr() string {
	return e.controlAddr
}

// IsRunning returns true if the embedded Tor daemon is currently running.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// NewClient returns a Client for the daemon's SOCKS5 port.
func (e *EmbeddedTor) NewClient(timeout time.Duration) (*Client, error) {
	if !e.IsRunning() {
		return nil, ErrTorNotRunning
	}
	return NewClient(e.socksAddr, timeout)
}
