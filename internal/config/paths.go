package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExecutableDir returns the directory holding the running binary, following
// symlinks. Falls back to the working directory when the binary path cannot
// be determined.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil || strings.TrimSpace(exe) == "" {
		if wd, wdErr := os.Getwd(); wdErr == nil && strings.TrimSpace(wd) != "" {
			return wd
		}
		return "."
	}
	if real, linkErr := filepath.EvalSymlinks(exe); linkErr == nil && strings.TrimSpace(real) != "" {
		exe = real
	}
	return filepath.Dir(exe)
}

// ResolveRuntimePath turns a configured directory into an absolute path.
// Relative paths anchor at the executable directory rather than the working
// directory, so the on-disk layout survives being started from anywhere.
func ResolveRuntimePath(configured, fallback string) string {
	target := strings.TrimSpace(configured)
	if target == "" {
		target = strings.TrimSpace(fallback)
	}
	if target == "" {
		return ExecutableDir()
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(ExecutableDir(), target)
	}
	return filepath.Clean(target)
}
