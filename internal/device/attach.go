// Package device exposes an image file as a block device so e2fsprogs can
// operate on its filesystem partition, and releases it again.
package device

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/imgshrink/imgshrink/internal/partition"
	"github.com/imgshrink/imgshrink/internal/utils"
)

var (
	// ErrNoDevice is returned when the attach tool did not yield a device identifier.
	ErrNoDevice = errors.New("no device identifier returned")
	// ErrNodeNotFound is returned when the partition node did not appear.
	ErrNodeNotFound = errors.New("partition device node not found")
	// ErrNoPartition is returned when the image has no partition to shrink.
	ErrNoPartition = errors.New("no filesystem partition found")
	// ErrUnsupportedPlatform is returned on hosts without an attach tool.
	ErrUnsupportedPlatform = errors.New("attaching images is not supported on this platform")
)

// Device is an attached image.
type Device struct {
	ID            string // /dev/loop3, /dev/disk4
	PartitionPath string // /dev/loop3p2, /dev/rdisk4s2
	Index         int
	Start         int64
}

// Attacher attaches image files as block devices.
type Attacher interface {
	Attach(ctx context.Context, image string) (*Device, error)
	// Detach is best-effort: callers log the error and carry on.
	Detach(ctx context.Context, dev *Device) error
}

// New returns the attacher for the host platform. The partition reader is
// used to locate the filesystem partition before attaching.
func New(reader partition.Reader) Attacher {
	return newPlatformAttacher(reader)
}

// nodeWait bounds how long attach waits for partition nodes to appear.
var nodeWait = 2 * time.Second

// isDeviceNode reports whether path is a block or character special file.
var isDeviceNode = func(path string) bool {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFBLK, unix.S_IFCHR:
		return true
	}
	return false
}

// locatePartition picks the filesystem partition: the last one in the table.
func locatePartition(ctx context.Context, reader partition.Reader, image string) (partition.Entry, error) {
	layout, err := reader.Read(ctx, image)
	if err != nil {
		return partition.Entry{}, err
	}
	last, ok := layout.Last()
	if !ok {
		return partition.Entry{}, &Error{Op: "locate partition", Path: image, BaseErr: ErrNoPartition}
	}
	utils.PrintDebug("Filesystem partition #%d starts at byte %d", last.Index, last.Start)
	return last, nil
}

// resolveNode returns the first candidate that exists as a device node,
// polling until nodeWait elapses. On failure it lists what does exist.
func resolveNode(ctx context.Context, deviceID string, candidates []string) (string, error) {
	deadline := time.Now().Add(nodeWait)
	for {
		for _, c := range candidates {
			if isDeviceNode(c) {
				return c, nil
			}
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	utils.PrintError("None of %s exist", strings.Join(candidates, ", "))
	base := filepath.Base(deviceID)
	var found []string
	for _, dir := range []string{"/dev", "/dev/mapper"} {
		matches, _ := filepath.Glob(filepath.Join(dir, "*"+strings.TrimPrefix(base, "r")+"*"))
		found = append(found, matches...)
	}
	if len(found) == 0 {
		utils.PrintNote("No device nodes matching %s", utils.StyleName(base))
	} else {
		utils.PrintNote("Device nodes matching %s:\n  %s", utils.StyleName(base), strings.Join(found, "\n  "))
	}
	return "", &Error{Op: "resolve partition node", Path: deviceID,
		BaseErr: fmt.Errorf("%w: tried %s", ErrNodeNotFound, strings.Join(candidates, ", "))}
}

func run(ctx context.Context, op, path, tool string, args ...string) (string, error) {
	utils.PrintDebug("[%s] Running %s %s", op, tool, strings.Join(args, " "))
	output, err := exec.CommandContext(ctx, tool, args...).CombinedOutput()
	if err != nil {
		return string(output), &Error{Op: op, Tool: tool, Path: path, Output: string(output), BaseErr: err}
	}
	return string(output), nil
}
