// Package partition reads and rewrites the partition table of a disk image
// and trims the image file to the end of its last partition.
package partition

import (
	"context"
	"fmt"
	"os"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// Table schemes, as parted names them.
const (
	SchemeMBR = "msdos"
	SchemeGPT = "gpt"
)

// Entry is one partition of a Layout. Offsets are in bytes; End is inclusive.
type Entry struct {
	Index      int
	Start      int64
	End        int64
	Size       int64
	Filesystem string
	Name       string
	Flags      string
}

// Logical reports whether the entry lives inside an MBR extended partition.
func (e Entry) Logical(scheme string) bool {
	return scheme == SchemeMBR && e.Index >= 5
}

// Layout is a snapshot of a partition table.
type Layout struct {
	Scheme     string
	DiskSize   int64
	SectorSize int64
	Entries    []Entry
	// Free holds unallocated regions when the reader was asked for them.
	Free []Entry
}

// Last returns the partition with the highest start offset.
func (l *Layout) Last() (Entry, bool) {
	var last Entry
	found := false
	for _, e := range l.Entries {
		if !found || e.Start > last.Start {
			last = e
			found = true
		}
	}
	return last, found
}

// Find returns the partition with the given index.
func (l *Layout) Find(index int) (Entry, bool) {
	for _, e := range l.Entries {
		if e.Index == index {
			return e, true
		}
	}
	return Entry{}, false
}

// Boundary returns the byte offset where the image may be cut: the start of
// a trailing free region when one follows the last partition, otherwise the
// byte after the last partition.
func (l *Layout) Boundary() (int64, error) {
	last, ok := l.Last()
	if !ok {
		return 0, fmt.Errorf("partition table has no partitions")
	}
	boundary := last.End + 1
	if n := len(l.Free); n > 0 && l.Free[n-1].Start > last.End {
		boundary = l.Free[n-1].Start
	}
	return boundary, nil
}

// Spec describes the partition after shrinking. End is exclusive.
type Spec struct {
	Index int
	Start int64
	End   int64
}

// NewSpec sizes the partition at index/start to hold targetBlocks blocks.
func NewSpec(index int, start, targetBlocks, blockSize int64) Spec {
	return Spec{Index: index, Start: start, End: start + targetBlocks*blockSize}
}

// Size returns the partition length in bytes.
func (s Spec) Size() int64 { return s.End - s.Start }

// Validate checks the spec against the current image length.
func (s Spec) Validate(imageLen int64) error {
	if s.Index <= 0 {
		return fmt.Errorf("invalid partition index %d", s.Index)
	}
	if s.Start < 0 || s.End <= s.Start {
		return fmt.Errorf("invalid partition range [%d, %d)", s.Start, s.End)
	}
	if s.End > imageLen {
		return fmt.Errorf("partition end %d exceeds image length %d", s.End, imageLen)
	}
	return nil
}

// Reader inspects the partition table of an image file.
type Reader interface {
	Read(ctx context.Context, image string) (*Layout, error)
}

// Rewriter replaces a partition entry and reports the boundary the
// rewritten table ends at. It must only be used while no device is attached.
type Rewriter interface {
	Reader
	Rewrite(ctx context.Context, image string, spec Spec) error
	FreeBoundary(ctx context.Context, image string) (int64, error)
}

// Truncate cuts the image file to length bytes and confirms the new length.
func Truncate(image string, length int64) error {
	if length <= 0 {
		return fmt.Errorf("refusing to truncate %s to %d bytes", image, length)
	}

	utils.PrintMessage("Truncating %s to %s", utils.StylePath(image), utils.StyleNumber(utils.FormatBytes(length)))

	if err := os.Truncate(image, length); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", image, err)
	}

	size, err := utils.FileSize(image)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", image, err)
	}
	if size != length {
		return fmt.Errorf("truncate of %s left %d bytes, want %d", image, size, length)
	}
	return nil
}
