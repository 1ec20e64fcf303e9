//go:build !linux

package proctitle

import (
	"os"
	"strings"
)

// Set only rewrites argv[0] off Linux; there is no comm name to update.
func Set(title string) error {
	name := strings.TrimSpace(title)
	if name == "" {
		return nil
	}
	if len(os.Args) > 0 {
		os.Args[0] = name
	}
	return nil
}
