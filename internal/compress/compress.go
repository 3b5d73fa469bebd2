// Package compress replaces a finished image with a compressed copy.
//
// Strategies: none | gzip | gzip-parallel | xz
package compress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// Strategy names a compression format and implementation.
type Strategy string

const (
	None         Strategy = "none"
	Gzip         Strategy = "gzip"
	GzipParallel Strategy = "gzip-parallel"
	XZ           Strategy = "xz"
)

// ErrUnsupportedStrategy is returned for strategies that cannot run here.
var ErrUnsupportedStrategy = errors.New("unsupported compression strategy")

// pgzip block size; one block per worker is in flight at a time.
const parallelBlockSize = 1 << 20

// Options tune the gzip strategies. Level 0 means gzip's default.
type Options struct {
	Level   int
	Threads int
}

// ---------- strategy helpers ----------

// Select maps the -z/-Z/-a flag combination to a strategy. -a only
// affects gzip and is ignored with a warning otherwise.
func Select(gzipFlag, xzFlag, parallel bool) (Strategy, error) {
	if gzipFlag && xzFlag {
		return "", fmt.Errorf("%w: gzip and xz are mutually exclusive", ErrUnsupportedStrategy)
	}
	if parallel && !gzipFlag {
		utils.PrintWarning("-a only applies to gzip compression (-z), ignoring it.")
	}
	switch {
	case gzipFlag && parallel:
		return GzipParallel, nil
	case gzipFlag:
		return Gzip, nil
	case xzFlag:
		return XZ, nil
	}
	return None, nil
}

// Available reports whether s can run in this build.
func Available(s Strategy) error {
	switch s {
	case None, Gzip, GzipParallel, XZ:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedStrategy, string(s))
}

// Suffix returns the extension appended to the compressed file.
func (s Strategy) Suffix() string {
	switch s {
	case Gzip, GzipParallel:
		return ".gz"
	case XZ:
		return ".xz"
	}
	return ""
}

// OutputPath returns where Compress writes path's compressed form.
func OutputPath(path string, s Strategy) string {
	return path + s.Suffix()
}

// ---------- compression ----------

// Compress writes path+suffix and removes path. It returns the new path;
// with None it returns path unchanged. A partial output is removed on error.
func Compress(ctx context.Context, path string, s Strategy, opts Options) (string, error) {
	if err := Available(s); err != nil {
		return "", err
	}
	if s == None {
		return path, nil
	}

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	dst := OutputPath(path, s)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}

	utils.PrintMessage("Compressing %s with %s", utils.StylePath(path), utils.StyleName(string(s)))

	if err := encode(ctx, out, in, s, opts, info); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return "", err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("failed to close %s: %w", dst, err)
	}

	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	if err := os.Remove(path); err != nil {
		return dst, fmt.Errorf("compressed to %s but failed to remove %s: %w", dst, path, err)
	}
	return dst, nil
}

func encode(ctx context.Context, w io.Writer, r io.Reader, s Strategy, opts Options, info os.FileInfo) error {
	src := &ctxReader{ctx: ctx, r: r}

	var enc io.WriteCloser
	switch s {
	case Gzip:
		gw, err := gzip.NewWriterLevel(w, level(opts.Level))
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		gw.Name = filepath.Base(info.Name())
		gw.ModTime = info.ModTime()
		enc = gw
	case GzipParallel:
		gw, err := pgzip.NewWriterLevel(w, level(opts.Level))
		if err != nil {
			return fmt.Errorf("pgzip: %w", err)
		}
		if err := gw.SetConcurrency(parallelBlockSize, threads(opts.Threads)); err != nil {
			return fmt.Errorf("pgzip: %w", err)
		}
		gw.Name = filepath.Base(info.Name())
		gw.ModTime = info.ModTime()
		enc = gw
	case XZ:
		xw, err := xz.WriterConfig{CheckSum: xz.CRC64}.NewWriter(w)
		if err != nil {
			return fmt.Errorf("xz: %w", err)
		}
		enc = xw
	}

	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return fmt.Errorf("%s: %w", s, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	return nil
}

func level(l int) int {
	if l < 1 || l > 9 {
		return gzip.DefaultCompression
	}
	return l
}

func threads(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
