// Package process binds to background server processes running on the
// local machine. A binding is a TCP connection to the process control port;
// the process is launched detached when it is not already running.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goletan/servicehost/internal/discovery"
	"github.com/goletan/servicehost/shared/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultReadyTimeout = 30 * time.Second
	DefaultStopTimeout  = 10 * time.Second

	dialTimeout  = 2 * time.Second
	pollInterval = 100 * time.Millisecond
)

var (
	// ErrUnavailable is returned when the process is neither running nor launchable.
	ErrUnavailable = errors.New("process unavailable")
	// ErrExited is reported when a launched process exits before it accepts connections.
	ErrExited = errors.New("process exited before accepting connections")
)

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Session is the connection handle returned by Binder.
type Session struct {
	net.Conn
	id      string
	service string
	pid     int
	closed  atomic.Bool
}

func (s *Session) ID() string { return s.id }

// PID returns the process the session is connected to.
func (s *Session) PID() int { return s.pid }

// Service returns the descriptor name the session belongs to.
func (s *Session) Service() string { return s.service }

// Close releases the connection. The session never reports Disconnected
// after Close.
func (s *Session) Close() error {
	s.closed.Store(true)
	return s.Conn.Close()
}

// Binder implements types.Binder for local OS processes.
type Binder struct {
	resolver discovery.Strategy
	logger   *zap.Logger
	dial     DialFunc

	mu       sync.Mutex
	sessions map[string]*Session
	children map[int]<-chan struct{} // exit signal of processes launched here
	launched map[string]int          // descriptor name -> launched pid
}

// NewBinder creates a Binder. resolver may be nil, in which case control
// addresses are dialed verbatim.
func NewBinder(resolver discovery.Strategy, log *zap.Logger) *Binder {
	if log == nil {
		log = zap.NewNop()
	}
	d := &net.Dialer{}
	return &Binder{
		resolver: resolver,
		logger:   log.Named("binder"),
		dial:     d.DialContext,
		sessions: make(map[string]*Session),
		children: make(map[int]<-chan struct{}),
		launched: make(map[string]int),
	}
}

// Bind adopts the process named by the PID file or launches it, then
// connects to its control address in the background. ctx only bounds
// issuing the request.
func (b *Binder) Bind(ctx context.Context, desc types.Descriptor, n types.Notifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var exited <-chan struct{}
	pid, running := b.running(desc)
	if running {
		b.logger.Info("Adopting running process", zap.String("service", desc.Name), zap.Int("pid", pid))
		b.mu.Lock()
		exited = b.children[pid]
		b.mu.Unlock()
	} else {
		if desc.Command == "" {
			return fmt.Errorf("%w: %s is not running and has no command", ErrUnavailable, desc.Name)
		}
		var err error
		if pid, exited, err = b.launch(desc); err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	go b.connect(desc, pid, exited, n)
	return nil
}

// Unbind closes a session returned through Connected.
func (b *Binder) Unbind(_ context.Context, conn types.Connection) error {
	s, ok := conn.(*Session)
	if !ok {
		return fmt.Errorf("unbind: unexpected connection type %T", conn)
	}
	b.untrack(s)
	if err := s.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Terminate stops the process gracefully, escalating to a kill after the
// descriptor stop timeout. A process that is not running is a no-op.
func (b *Binder) Terminate(ctx context.Context, desc types.Descriptor) error {
	pid, running := b.running(desc)
	if !running {
		return b.clearPID(desc)
	}

	log := b.logger.With(zap.String("service", desc.Name), zap.Int("pid", pid))
	log.Info("Stopping process")
	if err := signalStop(pid); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	timeout := desc.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	if !b.waitExit(ctx, pid, timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Warn("Process did not stop in time, killing", zap.Duration("timeout", timeout))
		if err := kill(pid); err != nil {
			return fmt.Errorf("failed to kill process %d: %w", pid, err)
		}
		b.waitExit(ctx, pid, time.Second)
	}

	log.Info("Process stopped")
	return b.clearPID(desc)
}

func (b *Binder) running(desc types.Descriptor) (int, bool) {
	if pid, ok := Running(desc.PIDFile); ok {
		return pid, true
	}

	b.mu.Lock()
	pid, ok := b.launched[desc.Name]
	var exited <-chan struct{}
	if ok {
		exited = b.children[pid]
	}
	b.mu.Unlock()

	if !ok {
		return 0, false
	}
	select {
	case <-exited:
		return 0, false
	default:
		return pid, true
	}
}

func (b *Binder) launch(desc types.Descriptor) (int, <-chan struct{}, error) {
	cmd := exec.Command(desc.Command, desc.Args...)
	cmd.Dir = desc.Dir
	cmd.Env = append(os.Environ(), desc.Env...)
	cmd.SysProcAttr = detach()

	var logFile *os.File
	if desc.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(desc.LogFile), 0o755); err != nil {
			return 0, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(desc.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	err := cmd.Start()
	if logFile != nil {
		_ = logFile.Close()
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to start %s: %w", desc.Command, err)
	}

	pid := cmd.Process.Pid
	exited := make(chan struct{})

	b.mu.Lock()
	b.children[pid] = exited
	b.launched[desc.Name] = pid
	b.mu.Unlock()

	go func() {
		err := cmd.Wait()
		b.logger.Info("Process exited", zap.String("service", desc.Name), zap.Int("pid", pid), zap.Error(err))
		if recorded, rerr := ReadPID(desc.PIDFile); rerr == nil && recorded == pid {
			_ = RemovePID(desc.PIDFile)
		}
		b.mu.Lock()
		delete(b.children, pid)
		if b.launched[desc.Name] == pid {
			delete(b.launched, desc.Name)
		}
		b.mu.Unlock()
		close(exited)
	}()

	if desc.PIDFile != "" {
		if err := WritePID(desc.PIDFile, pid); err != nil {
			_ = cmd.Process.Kill()
			return 0, nil, err
		}
	}

	b.logger.Info("Launched process",
		zap.String("service", desc.Name),
		zap.String("command", desc.Command),
		zap.Int("pid", pid))
	return pid, exited, nil
}

func (b *Binder) connect(desc types.Descriptor, pid int, exited <-chan struct{}, n types.Notifier) {
	timeout := desc.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = pollInterval
	bo.MaxInterval = dialTimeout
	bo.MaxElapsedTime = timeout

	var conn net.Conn
	op := func() error {
		select {
		case <-exited:
			return backoff.Permanent(ErrExited)
		default:
		}

		addr, err := b.resolve(desc.ControlAddr)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		c, err := b.dial(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		n.Failed(fmt.Errorf("connect %s: %w", desc.ControlAddr, err))
		return
	}

	s := &Session{Conn: conn, id: uuid.NewString(), service: desc.Name, pid: pid}
	b.mu.Lock()
	b.sessions[s.id] = s
	b.mu.Unlock()

	b.logger.Debug("Control connection established",
		zap.String("service", desc.Name),
		zap.String("session", s.id),
		zap.Stringer("remote", conn.RemoteAddr()))

	n.Connected(s)
	go b.watch(s, n)
}

// watch drains the control connection and reports when the peer goes away.
func (b *Binder) watch(s *Session, n types.Notifier) {
	_, err := io.Copy(io.Discard, s.Conn)
	b.untrack(s)
	if s.closed.Load() {
		return
	}
	if err == nil {
		err = io.EOF
	}
	n.Disconnected(err)
}

func (b *Binder) resolve(ref string) (string, error) {
	if b.resolver == nil {
		return ref, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	endpoints, err := b.resolver.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no endpoints for %q", ref)
	}
	return net.JoinHostPort(endpoints[0].Host, strconv.Itoa(endpoints[0].Port)), nil
}

func (b *Binder) waitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	b.mu.Lock()
	exited := b.children[pid]
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		// Children are reaped by their Wait goroutine; polling them would
		// see a zombie as alive.
		if exited == nil && !alive(pid) {
			return true
		}
		select {
		case <-exited:
			return true
		case <-ticker.C:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (b *Binder) untrack(s *Session) {
	b.mu.Lock()
	delete(b.sessions, s.id)
	b.mu.Unlock()
}

func (b *Binder) clearPID(desc types.Descriptor) error {
	if desc.PIDFile == "" {
		return nil
	}
	return RemovePID(desc.PIDFile)
}

// Sessions returns the number of live sessions.
func (b *Binder) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
