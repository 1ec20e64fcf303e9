//go:build linux

package proctitle

import (
	"errors"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The kernel truncates comm names beyond 15 bytes.
const commNameMax = 15

// Set renames the process in ps/top output. The title lands both in argv[0]
// and in the kernel comm name via PR_SET_NAME.
func Set(title string) error {
	name := strings.TrimSpace(title)
	if name == "" {
		return errors.New("blank process title")
	}

	if len(os.Args) > 0 {
		os.Args[0] = name
	}

	comm := make([]byte, commNameMax+1)
	copy(comm, name)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&comm[0])), 0, 0, 0)
}
