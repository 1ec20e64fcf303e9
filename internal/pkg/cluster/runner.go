//go:build !windows

package cluster

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run supervises the worker pool when cluster mode is on; otherwise it calls
// workerFn directly. On unix every worker binds the same port via
// SO_REUSEPORT, so the master only supervises processes.
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
	m := &master{
		logger:  logger,
		workers: make(map[int]*exec.Cmd),
	}
	return m.run(opts.Workers)
}

type master struct {
	logger  *zap.Logger
	workers map[int]*exec.Cmd
	exits   chan procExit
}

func (m *master) run(requestedWorkers int) error {
	count := clampWorkers(requestedWorkers)
	m.exits = make(chan procExit, count*2)
	m.logger.Info("cluster mode enabled",
		zap.Int("master_pid", os.Getpid()),
		zap.Int("workers", count),
		zap.Int("cpu", runtime.NumCPU()),
	)

	for id := 1; id <= count; id++ {
		if err := m.spawn(id); err != nil {
			m.killAll()
			return err
		}
	}
	return m.reap()
}

func (m *master) spawn(id int) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	args := append([]string(nil), os.Args[1:]...)
	cmd := exec.Command(exe, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = childEnv(os.Environ(), id)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn worker %d: %w", id, err)
	}

	m.workers[id] = cmd
	m.logger.Info("worker started", zap.Int("worker_id", id), zap.Int("pid", cmd.Process.Pid))

	pid := cmd.Process.Pid
	go func() {
		waitErr := cmd.Wait()
		m.exits <- procExit{id: id, pid: pid, code: exitCode(waitErr)}
	}()
	return nil
}

func (m *master) reap() error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	stopping := false
	var forceKill <-chan time.Time

	for len(m.workers) > 0 {
		select {
		case sig := <-sigs:
			if stopping {
				continue
			}
			stopping = true
			m.logger.Info("cluster shutting down", zap.String("signal", sig.String()))
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
				m.logger.Warn("worker crashed, restarting", zap.Int("worker_id", exit.id))
				if err := m.spawn(exit.id); err != nil {
					return err
				}
			}
		}
	}

	m.logger.Info("cluster master exited")
	return nil
}

// reapOne removes the exited worker from the table. Exit notifications whose
// pid no longer matches belong to an earlier incarnation of the same worker
// id and are ignored.
func (m *master) reapOne(exit procExit) bool {
	cmd, ok := m.workers[exit.id]
	if !ok || !started(cmd) || cmd.Process.Pid != exit.pid {
		return false
	}
	delete(m.workers, exit.id)

	level := m.logger.Info
	if exit.code != 0 {
		level = m.logger.Warn
	}
	level("worker exited", zap.Int("worker_id", exit.id), zap.Int("pid", exit.pid), zap.Int("code", exit.code))
	return true
}

func (m *master) interruptAll() {
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

func (m *master) killAll() {
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

// childEnv strips inherited cluster variables and stamps the child with its
// role and worker id.
func childEnv(base []string, id int) []string {
	kept := make([]string, 0, len(base)+2)
	for _, kv := range base {
		if isClusterEnv(kv) {
			continue
		}
		kept = append(kept, kv)
	}
	return append(kept,
		EnvRole+"="+RoleWorker,
		EnvWorkerID+"="+strconv.Itoa(id),
	)
}
