package listener

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rsm-agent/internal/command"
	"rsm-agent/internal/config"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []command.Command
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, cmd command.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	return f.err
}

func (f *fakeExecutor) commands() []command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Command(nil), f.calls...)
}

func (f *fakeExecutor) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestEngine(t *testing.T, yaml string) (*Engine, *fakeExecutor, *syncBuffer) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	provider, err := config.NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	exec := &fakeExecutor{}
	logBuf := &syncBuffer{}
	e := New(provider, command.NewCatalog(), exec, log.New(logBuf, "", 0))
	return e, exec, logBuf
}

// startEngine binds to an ephemeral loopback port regardless of the
// configured target and waits until the engine is listening.
func startEngine(t *testing.T, e *Engine) (addr string, stop func()) {
	t.Helper()

	e.listen = func(string) (net.Listener, error) {
		return net.Listen("tcp", "127.0.0.1:0")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool {
		return e.State() == StateListening && e.Addr() != ""
	})

	return e.Addr(), func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v after shutdown, want nil", err)
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func get(t *testing.T, rawURL, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	resp.Body.Close()
	return resp
}

const secretConfig = `
listener:
  bind_address: 127.0.0.1
  port: 8877
  secret: S
`

func TestEngineServesAuthenticatedCommands(t *testing.T) {
	e, exec, _ := newTestEngine(t, secretConfig)
	addr, stop := startEngine(t, e)
	defer stop()
	base := "http://" + addr

	// Liveness probe: authorized but never reaches the executor.
	if resp := get(t, base+"/ping", "S"); resp.StatusCode != http.StatusOK {
		t.Fatalf("/ping status=%d", resp.StatusCode)
	}
	if n := len(exec.commands()); n != 0 {
		t.Fatalf("ping invoked the executor %d times", n)
	}

	// Bearer-authenticated command.
	if resp := get(t, base+"/shutdown", "S"); resp.StatusCode != http.StatusOK {
		t.Fatalf("/shutdown status=%d", resp.StatusCode)
	}

	// Legacy URL-embedded secret: command is the second segment.
	if resp := get(t, base+"/S/restart", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("/S/restart status=%d", resp.StatusCode)
	}

	got := exec.commands()
	if len(got) != 2 || got[0] != command.Shutdown || got[1] != command.Restart {
		t.Fatalf("executed=%v", got)
	}

	// Unknown command with valid auth.
	if resp := get(t, base+"/dance", "S"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("/dance status=%d", resp.StatusCode)
	}

	// Executor failure maps to 500.
	exec.setErr(errors.New("shutdown.exe missing"))
	if resp := get(t, base+"/lock", "S"); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("/lock status=%d", resp.StatusCode)
	}
}

func TestEngineUnauthorizedAndThrottled(t *testing.T) {
	e, exec, logBuf := newTestEngine(t, secretConfig)
	addr, stop := startEngine(t, e)
	defer stop()
	base := "http://" + addr

	resp := get(t, base+"/shutdown", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != "Bearer" {
		t.Fatalf("WWW-Authenticate=%q", got)
	}

	// Wrong token, no URL fallback match.
	if resp := get(t, base+"/shutdown", "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", resp.StatusCode)
	}

	if n := len(exec.commands()); n != 0 {
		t.Fatalf("unauthorized requests reached the executor %d times", n)
	}

	// Both attempts came from the same address inside one throttle window:
	// exactly one log entry.
	if n := strings.Count(logBuf.String(), "unauthorized request from"); n != 1 {
		t.Fatalf("unauthorized log entries=%d, want 1\nlog:\n%s", n, logBuf.String())
	}
}

func TestEngineNoSecretAuthorizesEveryone(t *testing.T) {
	e, exec, _ := newTestEngine(t, "listener:\n  bind_address: 127.0.0.1\n  port: 8877\n")
	addr, stop := startEngine(t, e)
	defer stop()

	if resp := get(t, "http://"+addr+"/lock", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	got := exec.commands()
	if len(got) != 1 || got[0] != command.Lock {
		t.Fatalf("executed=%v", got)
	}
}

func TestEngineFatalAfterMaxAttempts(t *testing.T) {
	e, _, _ := newTestEngine(t, `
listener:
  port: 8877
retry:
  base_delay_sec: 1
  max_delay_sec: 60
  max_attempts: 3
`)

	var delays []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	binds := 0
	e.listen = func(string) (net.Listener, error) {
		binds++
		return nil, errors.New("address already in use")
	}

	err := e.Run(context.Background())
	if err == nil {
		t.Fatal("Run must return a fatal error once the retry budget is spent")
	}
	if binds != 3 {
		t.Fatalf("bind attempts=%d, want 3", binds)
	}
	// Attempts 1 and 2 sleep; the third goes fatal without sleeping.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Fatalf("delays=%v, want %v", delays, want)
	}
	if e.State() != StateFatal {
		t.Fatalf("state=%q, want fatal", e.State())
	}
}

func TestEngineInvalidPortNeverBinds(t *testing.T) {
	e, _, _ := newTestEngine(t, `
listener:
  port: 70000
retry:
  base_delay_sec: 1
  max_delay_sec: 60
  max_attempts: 2
`)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	binds := 0
	e.listen = func(string) (net.Listener, error) {
		binds++
		return nil, nil
	}

	err := e.Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if !errors.Is(err, errInvalidPort) {
		t.Fatalf("err=%v, want invalid port", err)
	}
	if binds != 0 {
		t.Fatalf("bind attempted %d times for an invalid port", binds)
	}
}

func TestEngineRebindsWhenConfigChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(secretConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	provider, err := config.NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	e := New(provider, command.NewCatalog(), &fakeExecutor{}, log.New(&syncBuffer{}, "", 0))

	var mu sync.Mutex
	var targets []string
	e.listen = func(addr string) (net.Listener, error) {
		mu.Lock()
		targets = append(targets, addr)
		mu.Unlock()
		return net.Listen("tcp", "127.0.0.1:0")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	waitFor(t, 5*time.Second, func() bool { return e.State() == StateListening })

	s := provider.Current().Listener
	s.Port = 8901
	if err := provider.SetListener(s); err != nil {
		t.Fatalf("SetListener: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(targets) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	if !strings.HasSuffix(targets[0], ":8877") {
		t.Fatalf("first bind target=%q", targets[0])
	}
	if !strings.HasSuffix(targets[1], ":8901") {
		t.Fatalf("rebind target=%q", targets[1])
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.State() != StateStopped {
		t.Fatalf("state=%q, want stopped", e.State())
	}
}

func TestRouteShutdownCancellationIs503(t *testing.T) {
	e, exec, _ := newTestEngine(t, secretConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec.setErr(context.Canceled)

	status, _ := e.route(ctx, http.MethodGet, "/shutdown", "Bearer S", "192.168.1.9:5555")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", status)
	}
}

func TestEngineServesTLS(t *testing.T) {
	dir := t.TempDir()
	certPath := writeSelfSigned(t, dir, "rsm.pem")

	yaml := fmt.Sprintf(`
listener:
  bind_address: 127.0.0.1
  port: 8878
  secret: S
  use_tls: true
  certificate_path: %s
`, certPath)

	e, exec, _ := newTestEngine(t, yaml)
	addr, stop := startEngine(t, e)
	defer stop()

	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	req, err := http.NewRequest(http.MethodGet, "https://"+addr+"/shutdown", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer S")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET over TLS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	got := exec.commands()
	if len(got) != 1 || got[0] != command.Shutdown {
		t.Fatalf("executed=%v", got)
	}
}
