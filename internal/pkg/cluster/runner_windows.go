//go:build windows

package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run supervises the worker pool when cluster mode is on; otherwise it calls
// workerFn directly. Windows has no SO_REUSEPORT, so the master owns the
// public port and reverse proxies to workers on private ports.
func Run(logger *zap.Logger, opts Options, workerFn func() error) error {
	if workerFn == nil {
		return errors.New("workerFn is nil")
	}
	if err := checkOptions(opts); err != nil {
		return err
	}
	if !opts.Enable || IsWorker() {
		return workerFn()
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	m := &winMaster{
		logger:  logger,
		workers: make(map[int]*exec.Cmd),
		targets: make(map[int]string),
	}
	return m.run(opts.Workers, opts.ListenAddr)
}

type winMaster struct {
	logger     *zap.Logger
	workerHost string
	basePort   int
	workers    map[int]*exec.Cmd
	targets    map[int]string
	exits      chan procExit
	ring       *targetRing
}

func (m *winMaster) run(requestedWorkers int, rawAddr string) error {
	addr := strings.TrimSpace(rawAddr)
	if addr == "" {
		return errors.New("cluster mode on windows needs a listen address")
	}
	host, port, err := splitListenAddr(addr)
	if err != nil {
		return err
	}
	m.basePort = port
	m.workerHost = host
	// Workers must be dialable; a wildcard bind host is not.
	switch m.workerHost {
	case "", "0.0.0.0", "::":
		m.workerHost = "127.0.0.1"
	}

	count := clampWorkers(requestedWorkers)
	m.exits = make(chan procExit, count*2)
	m.logger.Info(fmt.Sprintf("Primary server started on %d", os.Getpid()))
	m.logger.Info(fmt.Sprintf("CPU:%d", runtime.NumCPU()))
	m.logger.Info("cluster mode enabled", zap.Int("workers", count), zap.String("addr", addr))

	for id := 1; id <= count; id++ {
		if err := m.spawn(id); err != nil {
			m.killAll()
			return err
		}
	}

	m.ring = &targetRing{}
	if err := m.ring.Reload(m.targets); err != nil {
		m.killAll()
		return err
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: m.proxyHandler(),
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		m.killAll()
		return fmt.Errorf("cluster proxy listen %s: %w", addr, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	return m.reap(srv, serveErr)
}

func (m *winMaster) spawn(id int) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	addr := net.JoinHostPort(m.workerHost, strconv.Itoa(workerPort(m.basePort, id)))

	args := append([]string(nil), os.Args[1:]...)
	cmd := exec.Command(exe, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = childEnv(os.Environ(), id, addr)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn worker %d: %w", id, err)
	}

	m.workers[id] = cmd
	m.targets[id] = "http://" + addr
	m.logger.Info(fmt.Sprintf("Worker %d is online", cmd.Process.Pid), zap.Int("worker_id", id), zap.String("addr", addr))

	pid := cmd.Process.Pid
	go func() {
		waitErr := cmd.Wait()
		m.exits <- procExit{id: id, pid: pid, code: exitCode(waitErr)}
	}()
	return nil
}

func (m *winMaster) reap(srv *http.Server, serveErr chan error) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	stopping := false
	var forceKill <-chan time.Time

	for len(m.workers) > 0 {
		select {
		case err := <-serveErr:
			if err != nil {
				stopping = true
				m.interruptAll()
				m.killAll()
				return err
			}
			if stopping {
				continue
			}
			return errors.New("cluster proxy exited unexpectedly")

		case sig := <-sigs:
			if stopping {
				continue
			}
			stopping = true
			m.logger.Info("Cluster shutting down...", zap.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			_ = srv.Shutdown(ctx)
			cancel()
			m.interruptAll()
			forceKill = time.After(shutdownGrace)

		case <-forceKill:
			m.killAll()
			forceKill = nil

		case exit := <-m.exits:
			if !m.reapOne(exit) || stopping {
				continue
			}
			if exit.code != 0 {
				m.logger.Warn(fmt.Sprintf("Worker %d died. Restarting", exit.pid), zap.Int("worker_id", exit.id))
				if err := m.spawn(exit.id); err != nil {
					return err
				}
				m.ring.Reload(m.targets)
			}
		}
	}

	m.logger.Info("Primary server exited")
	return nil
}

// reapOne removes the exited worker and refreshes the proxy targets. Stale
// notifications whose pid no longer matches are ignored.
func (m *winMaster) reapOne(exit procExit) bool {
	cmd, ok := m.workers[exit.id]
	if !ok || !started(cmd) || cmd.Process.Pid != exit.pid {
		return false
	}
	delete(m.workers, exit.id)
	delete(m.targets, exit.id)
	m.ring.Reload(m.targets)

	if exit.code != 0 {
		m.logger.Warn("worker exited with non-zero code", zap.Int("worker_id", exit.id), zap.Int("pid", exit.pid), zap.Int("code", exit.code))
	}
	return true
}

func (m *winMaster) interruptAll() {
	for id, cmd := range m.workers {
		if !started(cmd) {
			continue
		}
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			m.logger.Warn("failed to send shutdown signal to worker", zap.Int("worker_id", id), zap.Int("pid", cmd.Process.Pid), zap.Error(err))
		}
		m.logger.Info("sent shutdown signal to worker", zap.Int("worker_id", id), zap.Int("pid", cmd.Process.Pid))
	}
}

func (m *winMaster) killAll() {
	for id, cmd := range m.workers {
		if !started(cmd) {
			continue
		}
		if err := cmd.Process.Kill(); err != nil {
			m.logger.Warn("failed to kill worker", zap.Int("worker_id", id), zap.Int("pid", cmd.Process.Pid), zap.Error(err))
			continue
		}
		m.logger.Warn("worker force killed", zap.Int("worker_id", id), zap.Int("pid", cmd.Process.Pid))
	}
}

func (m *winMaster) proxyHandler() http.Handler {
	return &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			next := m.ring.Next()
			if next == nil {
				return
			}
			req.URL.Scheme = next.Scheme
			req.URL.Host = next.Host
			req.Host = next.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			m.logger.Warn("proxy request failed", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "cluster proxy failed, check the server console", http.StatusBadGateway)
		},
	}
}

// childEnv strips inherited cluster variables and stamps the child with its
// role, worker id, and private listen address.
func childEnv(base []string, id int, workerAddr string) []string {
	kept := make([]string, 0, len(base)+3)
	for _, kv := range base {
		if isClusterEnv(kv) {
			continue
		}
		kept = append(kept, kv)
	}
	return append(kept,
		EnvRole+"="+RoleWorker,
		EnvWorkerID+"="+strconv.Itoa(id),
		EnvWorkerAddr+"="+workerAddr,
	)
}

// splitListenAddr splits host and port, accepting the bare ":8000" form as an
// all-interfaces bind.
func splitListenAddr(raw string) (string, int, error) {
	host, portRaw, err := net.SplitHostPort(raw)
	if err != nil {
		if !strings.HasPrefix(raw, ":") {
			return "", 0, fmt.Errorf("bad listen address %q: %w", raw, err)
		}
		host, portRaw = "", strings.TrimPrefix(raw, ":")
	}
	port, err := strconv.Atoi(strings.TrimSpace(portRaw))
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("bad listen port in %q", raw)
	}
	return host, port, nil
}

// workerPort maps a worker id onto the private port range above the public
// port.
func workerPort(basePort, workerID int) int {
	return basePort + 100 + workerID
}

// targetRing hands out worker base URLs round robin. Reload swaps the target
// set when workers die or restart.
type targetRing struct {
	mu      sync.RWMutex
	targets []*url.URL
	idx     uint64
}

func (r *targetRing) Reload(targets map[int]string) error {
	parsed := make([]*url.URL, 0, len(targets))
	for id, raw := range targets {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("worker %d target %q: %w", id, raw, err)
		}
		parsed = append(parsed, u)
	}
	if len(parsed) == 0 {
		return errors.New("no worker targets left")
	}
	r.mu.Lock()
	r.targets = parsed
	r.mu.Unlock()
	atomic.StoreUint64(&r.idx, 0)
	return nil
}

func (r *targetRing) Next() *url.URL {
	r.mu.RLock()
	pool := r.targets
	r.mu.RUnlock()
	if len(pool) == 0 {
		return nil
	}
	n := atomic.AddUint64(&r.idx, 1)
	return pool[(n-1)%uint64(len(pool))]
}
