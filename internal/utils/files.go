package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// --- Extension Checks (String-based) ---

// IsImg checks if the path has a raw disk image extension (.img, .raw).
func IsImg(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".img" || ext == ".raw"
}

// IsDeviceNode checks if the path looks like a device node under /dev.
func IsDeviceNode(path string) bool {
	return strings.HasPrefix(path, "/dev/")
}

// --- Filesystem Checks (OS-based) ---

// FileExists checks if a file exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// FileSize returns the length of a regular file in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}

// ErrSameFile is returned by CopyFile when src and dst name the same file.
var ErrSameFile = errors.New("source and destination are the same file")

// copyChunk is the unit CopyFile reads and, when all zero, skips.
const copyChunk = 1 << 20

// CopyFile copies src to dst, leaving holes where src has all-zero chunks
// so sparse images stay sparse. dst is created (or truncated) with src's mode.
// The copy is abandoned when ctx is cancelled.
func CopyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	// Opening dst with O_TRUNC would empty src first; symlinks and hard links included.
	if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(info, dstInfo) {
		return fmt.Errorf("%w: %s and %s", ErrSameFile, src, dst)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	buf := make([]byte, copyChunk)
	zero := make([]byte, copyChunk)
	var offset int64

	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			_ = os.Remove(dst)
			return err
		}

		n, rerr := io.ReadFull(in, buf)
		if n > 0 {
			if bytes.Equal(buf[:n], zero[:n]) {
				// Hole: seek past it, the final Truncate fixes the length.
				if _, err := out.Seek(int64(n), io.SeekCurrent); err != nil {
					out.Close()
					return fmt.Errorf("failed to seek %s: %w", dst, err)
				}
			} else if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				return fmt.Errorf("failed to write %s: %w", dst, err)
			}
			offset += int64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			out.Close()
			return fmt.Errorf("failed to read %s: %w", src, rerr)
		}
	}

	if err := out.Truncate(offset); err != nil {
		out.Close()
		return fmt.Errorf("failed to set length of %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	return out.Close()
}
