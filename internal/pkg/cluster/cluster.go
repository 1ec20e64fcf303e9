package cluster

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	EnvRole       = "ECHO_CLUSTER_ROLE"
	EnvWorkerID   = "ECHO_CLUSTER_WORKER_ID"
	EnvWorkerAddr = "ECHO_CLUSTER_WORKER_ADDR"

	RoleMaster = "master"
	RoleWorker = "worker"
)

// shutdownGrace is how long workers get to exit cleanly after an interrupt
// before the master force kills them.
const shutdownGrace = 8 * time.Second

// instanceOrdinalKeys are set by external process managers; ordinal 0 is
// the main instance.
var instanceOrdinalKeys = []string{"ECHO_APP_INSTANCE", "INSTANCE_ID"}

type Options struct {
	Enable     bool
	Workers    int
	ListenAddr string
}

// procExit is a worker death notification delivered to the master loop.
type procExit struct {
	id   int
	pid  int
	code int
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func IsWorker() bool {
	return strings.EqualFold(envValue(EnvRole), RoleWorker)
}

func WorkerID() int {
	id, err := strconv.Atoi(envValue(EnvWorkerID))
	if err != nil || id < 1 {
		return 0
	}
	return id
}

func WorkerListenAddr() string {
	return envValue(EnvWorkerAddr)
}

// IsMainClusterInstance reports whether this process is instance 0 of an
// externally managed cluster, and whether such management was detected at all.
func IsMainClusterInstance() (bool, bool) {
	for _, key := range instanceOrdinalKeys {
		raw := envValue(key)
		if raw == "" {
			continue
		}
		ordinal, err := strconv.Atoi(raw)
		return err == nil && ordinal == 0, true
	}
	return false, false
}

// singleOwner resolves which process owns a cluster-wide run-once concern.
// asWorker is the answer when this process is a spawned worker; otherwise the
// externally assigned main instance wins, and a standalone process always
// owns everything.
func singleOwner(asWorker bool) bool {
	if IsWorker() {
		return asWorker
	}
	if main, ok := IsMainClusterInstance(); ok {
		return main
	}
	return true
}

// ShouldRunCron keeps cron jobs single-run across clustered workers.
func ShouldRunCron() bool {
	return singleOwner(WorkerID() == 1)
}

// ShouldLogBootstrap limits startup banners to a single process per cluster.
func ShouldLogBootstrap() bool {
	return singleOwner(false)
}

// ShouldLogDevDiagnostics gates dev-only framework output to one process in
// cluster mode.
func ShouldLogDevDiagnostics() bool {
	return singleOwner(WorkerID() == 1)
}

func checkOptions(opts Options) error {
	if !opts.Enable || opts.Workers >= 0 {
		return nil
	}
	return errors.New("cluster workers must be >= 0")
}

func hasEnvKey(kv, key string) bool {
	return len(kv) > len(key) && kv[len(key)] == '=' && kv[:len(key)] == key
}

// isClusterEnv matches the variables the master stamps on spawned workers.
func isClusterEnv(kv string) bool {
	return hasEnvKey(kv, EnvRole) || hasEnvKey(kv, EnvWorkerID) || hasEnvKey(kv, EnvWorkerAddr)
}

func started(cmd *exec.Cmd) bool {
	return cmd != nil && cmd.Process != nil
}

// clampWorkers resolves the worker count: non-positive means one per CPU,
// and requests above the CPU count are capped.
func clampWorkers(requested int) int {
	if cpus := runtime.NumCPU(); requested <= 0 || requested > cpus {
		return cpus
	}
	return requested
}

func exitCode(waitErr error) int {
	var ee *exec.ExitError
	switch {
	case waitErr == nil:
		return 0
	case errors.As(waitErr, &ee):
		return ee.ExitCode()
	default:
		return -1
	}
}
