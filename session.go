package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// ========================================
// Session lifecycle controller
// Owns the single automation session: its state machine, the listening
// endpoint, and the device stay-awake signal tied to a running session.
// ========================================

// Session states. Stopped -> Starting -> Running -> Stopped; a failed start
// lands back in Stopped, never a half-started state.
const (
	SessionStopped  = "stopped"
	SessionStarting = "starting"
	SessionRunning  = "running"
)

// ErrInvalidPort is returned before any socket is opened.
var ErrInvalidPort = errors.New("port must be between 1024 and 65535")

// SessionController enforces that at most one session runs at a time.
// Exposed to the host process (main), not over HTTP.
type SessionController struct {
	mu        sync.Mutex
	state     string
	port      int
	url       string
	server    *http.Server
	listener  net.Listener
	handler   http.Handler
	driver    DeviceDriver
	stayAwake bool
}

// NewSessionController builds a controller around the HTTP handler and the
// driver whose stay-awake signal follows the session state.
func NewSessionController(handler http.Handler, driver DeviceDriver, stayAwake bool) *SessionController {
	return &SessionController{
		state:     SessionStopped,
		handler:   handler,
		driver:    driver,
		stayAwake: stayAwake,
	}
}

// ValidatePort rejects privileged and out-of-range ports.
func ValidatePort(port int) error {
	if port < 1024 || port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, port)
	}
	return nil
}

// Start binds the listening endpoint and flips the session to Running.
// Starting while already Running is a no-op reporting the existing session's
// URL. A failed start leaves the session Stopped with no side effects.
func (c *SessionController) Start(port int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == SessionRunning {
		LogInfo("session").Str("url", c.url).Msg("Session already running")
		return c.url, nil
	}

	if err := ValidatePort(port); err != nil {
		return "", err
	}

	c.state = SessionStarting

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		c.state = SessionStopped
		return "", fmt.Errorf("failed to bind port %d: %w", port, err)
	}

	c.listener = listener
	c.port = listener.Addr().(*net.TCPAddr).Port
	c.url = fmt.Sprintf("http://%s:%d", reachableHost(), c.port)
	c.server = &http.Server{
		Handler:           c.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			LogError("session").Err(err).Msg("HTTP server terminated unexpectedly")
			c.mu.Lock()
			if c.server == srv {
				c.state = SessionStopped
				c.server = nil
				c.listener = nil
			}
			c.mu.Unlock()
		}
	}(c.server, listener)

	// Keep the device awake while a session is active; best effort
	if c.stayAwake {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.driver.StayAwake(ctx, true); err != nil {
			LogWarn("session").Err(err).Msg("Failed to enable stay-awake")
		}
		cancel()
	}

	c.state = SessionRunning
	LogInfo("session").Int("port", c.port).Str("url", c.url).Msg("Session started")
	return c.url, nil
}

// Stop releases the listening endpoint synchronously, reverses the
// stay-awake signal, then flips the state to Stopped. Stopping a session
// that was never started is a no-op.
func (c *SessionController) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != SessionRunning || c.server == nil {
		return nil
	}

	// Shutdown interrupts a blocked accept without killing in-flight requests
	if err := c.server.Shutdown(context.Background()); err != nil {
		LogWarn("session").Err(err).Msg("Server shutdown reported error")
	}
	c.server = nil
	c.listener = nil

	if c.stayAwake {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.driver.StayAwake(ctx, false); err != nil {
			LogWarn("session").Err(err).Msg("Failed to disable stay-awake")
		}
		cancel()
	}

	c.state = SessionStopped
	LogInfo("session").Msg("Session stopped")
	return nil
}

// IsRunning reports whether the session is live.
func (c *SessionController) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == SessionRunning
}

// State returns the current lifecycle state.
func (c *SessionController) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ServerURL returns the externally reachable URL of the running session, or
// empty when stopped.
func (c *SessionController) ServerURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != SessionRunning {
		return ""
	}
	return c.url
}

// Port returns the bound port of the running session (0 when stopped).
func (c *SessionController) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != SessionRunning {
		return 0
	}
	return c.port
}

// reachableHost prefers the active local-network IPv4 address, falling back
// to loopback.
func reachableHost() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}
