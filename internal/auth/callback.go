package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/arakabCL/TheNotch/internal/logger"
)

// DefaultCallbackTimeout bounds the wait for the browser redirect.
const DefaultCallbackTimeout = 120 * time.Second

const (
	successPage = `<html><body><h1>Signed in</h1><p>Authentication complete. You can close this window and return to the app.</p></body></html>`
	waitingPage = `<html><body><h1>Waiting for authorization</h1><p>Complete the sign-in flow in your browser.</p></body></html>`
)

// CallbackServer is a loopback HTTP acceptor that yields the authorization
// code from exactly one valid OAuth redirect. Stray requests (probes,
// provider errors, replayed or mis-stated redirects) never terminate the
// wait; only a request whose state matches the active session does.
type CallbackServer struct {
	port int
	path string

	server   *http.Server
	listener net.Listener

	mu            sync.Mutex
	running       bool
	resolved      bool
	expectedState string

	codeCh chan string
	errCh  chan error
}

// NewCallbackServer creates a callback server for 127.0.0.1:port.
func NewCallbackServer(port int, path string) *CallbackServer {
	return &CallbackServer{
		port:   port,
		path:   path,
		codeCh: make(chan string, 1),
		errCh:  make(chan error, 1),
	}
}

// Start binds the loopback listener and begins accepting requests for the
// given expected state.
func (s *CallbackServer) Start(expectedState string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("%w: already running", ErrServerNotStarted)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerNotStarted, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.listener = ln
	s.expectedState = expectedState
	s.resolved = false
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.resolveError(fmt.Errorf("callback server failed: %w", err))
		}
	}(s.server, ln)

	return nil
}

// Stop shuts the server down. Safe to call more than once.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	s.listener = nil

	return err
}

// WaitForCode blocks until a redirect carrying a matching state arrives,
// the timeout elapses, the context is cancelled, or the server fails.
func (s *CallbackServer) WaitForCode(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}

	select {
	case code := <-s.codeCh:
		return code, nil
	case err := <-s.errCh:
		return "", err
	case <-time.After(timeout):
		return "", ErrCallbackTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *CallbackServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Probes (favicon and friends) get a plain 404 and never affect the wait.
	if r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		// Provider-reported error on a stray or abandoned attempt. Keep
		// listening; the user may retry before the timeout.
		logger.Warn("authorization callback reported error", "error", errParam)
		s.writePage(w, waitingPage)
		return
	}

	code := query.Get("code")
	if code == "" {
		s.writePage(w, waitingPage)
		return
	}

	if query.Get("state") != s.currentExpectedState() {
		// A replayed or forged redirect must not satisfy the wait.
		logger.Warn("authorization callback state mismatch, ignoring request")
		s.writePage(w, waitingPage)
		return
	}

	s.writePage(w, successPage)
	s.resolveCode(code)
}

func (s *CallbackServer) currentExpectedState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expectedState
}

// resolveCode delivers the code to the waiter exactly once; later
// resolutions are silent no-ops.
func (s *CallbackServer) resolveCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return
	}
	s.resolved = true
	s.codeCh <- code
}

func (s *CallbackServer) resolveError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return
	}
	s.resolved = true
	s.errCh <- err
}

func (s *CallbackServer) writePage(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}
