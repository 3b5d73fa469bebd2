package e2fs

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// ErrLocked is returned when another process holds the image lock.
var ErrLocked = errors.New("image is locked by another process")

// Lock represents a file lock on a disk image.
// It must be closed to release the lock.
type Lock struct {
	file  *os.File
	path  string
	write bool
}

// Close releases the lock by closing the file.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}
	// flock locks are automatically released when the file is closed.
	err := l.file.Close()
	l.file = nil
	return err
}

// AcquireLock attempts to acquire a lock on the image file.
// If write is true, it attempts an exclusive lock (LOCK_EX).
// If write is false, it attempts a shared lock (LOCK_SH).
// Both are non-blocking (LOCK_NB).
func AcquireLock(path string, write bool) (*Lock, error) {
	flag, how, verb := os.O_RDONLY, unix.LOCK_SH, "reading"
	if write {
		flag, how, verb = os.O_RDWR, unix.LOCK_EX, "writing"
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("can't open %s for %s: %w", utils.StylePath(path), verb, err)
	}

	if err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("can't open %s for %s: %w", utils.StylePath(path), verb, ErrLocked)
	}
	return &Lock{file: f, path: path, write: write}, nil
}
