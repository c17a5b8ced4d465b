// Package listener owns the network listener for remote power commands: its
// bind/rebind lifecycle with retry and backoff, TLS certificate handling,
// request authentication, and routing into the command executor.
package listener

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"rsm-agent/internal/command"
	"rsm-agent/internal/config"
)

const (
	defaultThrottleWindow = 60 * time.Second

	// acceptPoll bounds how long Accept blocks so the loop keeps re-reading
	// the live configuration even with no inbound traffic.
	acceptPoll       = time.Second
	acceptErrorDelay = time.Second
	requestTimeout   = 10 * time.Second
)

// Engine states, exposed to the management client via ServiceStatus.
const (
	StateUnbound   = "unbound"
	StateBinding   = "binding"
	StateListening = "listening"
	StateStopped   = "stopped"
	StateFatal     = "fatal"
)

var errInvalidPort = errors.New("listener port out of range")

type binding struct {
	ln     net.Listener // tls-wrapped when useTLS
	tcp    *net.TCPListener
	target string
	useTLS bool
}

// Engine runs a single serial accept loop: one request is authenticated,
// routed, executed and answered before the next is accepted. That is the
// intended concurrency model for this low-traffic control channel, and it is
// why retry state, the bound certificate and the throttle table need no locks.
type Engine struct {
	cfg      *config.Provider
	catalog  *command.Catalog
	executor command.Executor
	logger   *log.Logger

	retry        retryState
	unauthorized *throttle
	cert         *boundCert
	bound        *binding

	stateMu sync.Mutex
	state   string
	addr    string

	listen func(addr string) (net.Listener, error)
	sleep  func(ctx context.Context, d time.Duration) error
	nowFn  func() time.Time
}

func New(cfg *config.Provider, catalog *command.Catalog, executor command.Executor, logger *log.Logger) *Engine {
	rc := cfg.Current().Retry
	return &Engine{
		cfg:      cfg,
		catalog:  catalog,
		executor: executor,
		logger:   logger,
		retry: retryState{
			baseDelay:   time.Duration(rc.BaseDelaySec) * time.Second,
			maxDelay:    time.Duration(rc.MaxDelaySec) * time.Second,
			maxAttempts: rc.MaxAttempts,
		},
		unauthorized: newThrottle(defaultThrottleWindow),
		state:        StateUnbound,
		listen: func(addr string) (net.Listener, error) {
			return net.Listen("tcp", addr)
		},
		sleep: sleepCtx,
		nowFn: time.Now,
	}
}

// Run drives the engine until ctx is cancelled (returns nil) or the bind
// retry budget is exhausted (returns the fatal error; the host process is
// expected to terminate on it).
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		e.closeBinding()
		e.cert = nil
		if e.State() != StateFatal {
			e.setState(StateStopped, "")
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		settings := e.cfg.Current().Listener

		target, err := bindTarget(settings)
		if err != nil {
			// Invalid port: no bind attempt, straight to the retry path.
			if fatal := e.retryBind(ctx, err); fatal != nil {
				return fatal
			}
			continue
		}

		if e.needsRebind(settings, target) {
			e.setState(StateBinding, "")
			if err := e.rebind(settings, target); err != nil {
				e.advise(err)
				if fatal := e.retryBind(ctx, err); fatal != nil {
					return fatal
				}
				continue
			}
			e.retry.reset()
			e.setState(StateListening, e.bound.ln.Addr().String())
			e.logger.Printf("listening on %s (tls=%v)", e.bound.ln.Addr(), settings.UseTLS)
		}

		if err := e.acceptOne(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			e.logger.Printf("accept error: %v", err)
			if e.sleep(ctx, acceptErrorDelay) != nil {
				return nil
			}
		}
	}
}

func (e *Engine) State() string {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// Addr is the actually-bound address, for status queries and tests.
func (e *Engine) Addr() string {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.addr
}

func (e *Engine) setState(state, addr string) {
	e.stateMu.Lock()
	e.state = state
	e.addr = addr
	e.stateMu.Unlock()
}

func bindTarget(s config.ListenerSettings) (string, error) {
	if s.Port < 1 || s.Port > 65535 {
		return "", fmt.Errorf("%w: %d", errInvalidPort, s.Port)
	}
	host := s.BindAddress
	// HttpListener-style wildcards mean "all interfaces".
	if host == "*" || host == "+" {
		host = ""
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port)), nil
}

func (e *Engine) needsRebind(s config.ListenerSettings, target string) bool {
	if e.bound == nil {
		return true
	}
	if e.bound.target != target || e.bound.useTLS != s.UseTLS {
		return true
	}
	if s.UseTLS && e.cert.changed(s.CertificatePath) {
		return true
	}
	return false
}

func (e *Engine) rebind(s config.ListenerSettings, target string) error {
	// Stop the previous bind before reapplying.
	e.closeBinding()

	if s.UseTLS {
		if err := e.ensureCert(s); err != nil {
			return err
		}
	}

	raw, err := e.listen(target)
	if err != nil {
		return fmt.Errorf("bind %s: %w", target, err)
	}

	b := &binding{target: target, useTLS: s.UseTLS}
	b.tcp, _ = raw.(*net.TCPListener)
	if s.UseTLS {
		b.ln = tls.NewListener(raw, &tls.Config{Certificates: []tls.Certificate{e.cert.cert}})
	} else {
		b.ln = raw
	}
	e.bound = b
	return nil
}

// ensureCert loads the certificate unless the already-loaded one still
// matches the file's fingerprint, in which case the existing handle is kept.
func (e *Engine) ensureCert(s config.ListenerSettings) error {
	if s.CertificatePath == "" {
		return errors.New("use_tls is set but certificate_path is empty")
	}
	if e.cert != nil && !e.cert.changed(s.CertificatePath) {
		return nil
	}

	cert, fp, err := loadCertificate(s.CertificatePath, s.CertificatePassword)
	if err != nil {
		return err
	}
	var mod time.Time
	if info, err := os.Stat(s.CertificatePath); err == nil {
		mod = info.ModTime()
	}
	e.cert = &boundCert{cert: cert, path: s.CertificatePath, fingerprint: fp, modTime: mod}
	return nil
}

func (e *Engine) closeBinding() {
	if e.bound != nil {
		_ = e.bound.ln.Close()
		e.bound = nil
	}
}

// retryBind consumes one attempt from the retry budget. It returns the fatal
// error once the budget is exhausted; otherwise it sleeps the backoff delay
// and returns nil so the loop tries again.
func (e *Engine) retryBind(ctx context.Context, cause error) error {
	e.closeBinding()
	e.retry.attempts++
	if e.retry.attempts >= e.retry.maxAttempts {
		e.setState(StateFatal, "")
		return fmt.Errorf("listener gave up after %d bind attempts: %w", e.retry.attempts, cause)
	}
	delay := e.retry.delay()
	e.logger.Printf("bind attempt %d/%d failed, retrying in %s: %v",
		e.retry.attempts, e.retry.maxAttempts, delay, cause)
	_ = e.sleep(ctx, delay)
	return nil
}

func (e *Engine) advise(err error) {
	if isAccessDenied(err) {
		e.logger.Printf("bind access denied; a URL reservation or elevated privileges may be required: %v", err)
	}
}

func isAccessDenied(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "access permissions")
}

func (e *Engine) acceptOne(ctx context.Context) error {
	if e.bound.tcp != nil {
		_ = e.bound.tcp.SetDeadline(time.Now().Add(acceptPoll))
	}
	conn, err := e.bound.ln.Accept()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	}
	e.serveConn(ctx, conn)
	return nil
}

func (e *Engine) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		// Malformed or aborted request; there is nobody to answer.
		return
	}

	status, header := e.route(ctx, req.Method, req.URL.Path, req.Header.Get("Authorization"), conn.RemoteAddr().String())
	resp := &http.Response{
		StatusCode: status,
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Request:    req,
		Close:      true,
	}
	_ = resp.Write(conn)
}

// route authenticates the request and dispatches the resolved command. The
// returned status is terminal; the caller writes it exactly once.
func (e *Engine) route(ctx context.Context, method, path, authHeader, remoteAddr string) (int, http.Header) {
	header := make(http.Header)
	segments := splitPath(path)
	secret := e.cfg.Current().Listener.Secret

	cmdSeg, ok := authorize(secret, authHeader, segments)
	if !ok {
		header.Set("WWW-Authenticate", "Bearer")
		host, _, err := net.SplitHostPort(remoteAddr)
		if err != nil {
			host = remoteAddr
		}
		if e.unauthorized.allow(host, e.nowFn()) {
			e.logger.Printf("unauthorized request from %s: %s %s", host, method, path)
		}
		return http.StatusUnauthorized, header
	}

	// Liveness probe: bypasses catalog and executor entirely.
	if strings.EqualFold(cmdSeg, "ping") {
		return http.StatusOK, header
	}

	cmd, found := e.catalog.Lookup(cmdSeg)
	if !found {
		e.logger.Printf("unknown command %q from %s", cmdSeg, remoteAddr)
		return http.StatusBadRequest, header
	}

	e.logger.Printf("command %s from %s", cmd, remoteAddr)
	if err := e.executor.Execute(ctx, cmd); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			// Shutdown raced the command: not an executor failure.
			return http.StatusServiceUnavailable, header
		}
		e.logger.Printf("command %s failed: %v", cmd, err)
		return http.StatusInternalServerError, header
	}
	return http.StatusOK, header
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
