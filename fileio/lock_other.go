//go:build !unix

package fileio

import (
	"errors"
	"os"
)

var errLockUnsupported = errors.New("fileio: advisory locks unsupported on this platform")

func lockFile(f *os.File) error   { return errLockUnsupported }
func unlockFile(f *os.File) error { return nil }
