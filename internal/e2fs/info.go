package e2fs

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// Stats holds metadata about an ext filesystem, read from its superblock.
type Stats struct {
	BlockSize       int64
	BlockCount      int64
	FreeBlocks      int64
	TotalInodes     int64
	FreeInodes      int64
	VolumeName      string
	FilesystemState string // "clean", "not clean", ...
	Features        []string
}

// SizeBytes returns the filesystem length in bytes.
func (s *Stats) SizeBytes() int64 {
	return s.BlockCount * s.BlockSize
}

// Usage returns the calculated used space in bytes and percentage.
func (s *Stats) Usage() (usedBytes int64, percent float64) {
	if s.BlockCount == 0 {
		return 0, 0
	}
	usedBlocks := s.BlockCount - s.FreeBlocks
	usedBytes = usedBlocks * s.BlockSize
	percent = (float64(usedBlocks) / float64(s.BlockCount)) * 100.0
	return
}

// Type names the ext generation the feature set corresponds to.
func (s *Stats) Type() string {
	switch {
	case s.HasFeature("extent") || s.HasFeature("64bit") || s.HasFeature("flex_bg"):
		return "ext4"
	case s.HasFeature("has_journal"):
		return "ext3"
	}
	return "ext2"
}

// HasFeature reports whether the superblock lists feature.
func (s *Stats) HasFeature(feature string) bool {
	for _, f := range s.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// ReadStats reads the filesystem superblock of device with tune2fs -l.
func ReadStats(ctx context.Context, device string) (*Stats, error) {
	if err := CheckDependencies([]string{"tune2fs"}); err != nil {
		return nil, err
	}

	// tune2fs -l lists the superblock info
	cmd := exec.CommandContext(ctx, "tune2fs", "-l", device)
	utils.PrintDebug("[read stats] Running tune2fs -l %s", device)
	out, err := cmd.CombinedOutput()
	if err != nil {
		base := err
		if strings.Contains(string(out), "Bad magic number") ||
			strings.Contains(string(out), "Couldn't find valid filesystem superblock") {
			base = ErrUnsupportedFilesystem
		}
		return nil, &Error{Op: "read stats", Path: device, Tool: "tune2fs", Output: string(out), BaseErr: base}
	}

	return ParseStats(string(out))
}

// ParseStats parses `tune2fs -l` / `dumpe2fs -h` output.
// Block count and Block size are mandatory, everything else is best-effort.
func ParseStats(out string) (*Stats, error) {
	kv := utils.ParseKeyValueLines(out, ":")

	blockCount, err := requireInt(kv, "Block count", out)
	if err != nil {
		return nil, err
	}
	blockSize, err := requireInt(kv, "Block size", out)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		BlockCount:      blockCount,
		BlockSize:       blockSize,
		VolumeName:      kv["Filesystem volume name"],
		FilesystemState: kv["Filesystem state"],
		Features:        strings.Fields(kv["Filesystem features"]),
	}
	stats.FreeBlocks, _ = strconv.ParseInt(kv["Free blocks"], 10, 64)
	stats.TotalInodes, _ = strconv.ParseInt(kv["Inode count"], 10, 64)
	stats.FreeInodes, _ = strconv.ParseInt(kv["Free inodes"], 10, 64)

	if magic, ok := kv["Filesystem magic number"]; ok && !strings.EqualFold(magic, "0xEF53") {
		return nil, errors.Join(ErrUnsupportedFilesystem, &ParseError{Tool: "tune2fs", Input: out, Reason: "unexpected magic number " + magic})
	}

	return stats, nil
}

func requireInt(kv map[string]string, key, input string) (int64, error) {
	raw, ok := kv[key]
	if !ok {
		return 0, &ParseError{Tool: "tune2fs", Input: input, Reason: "missing '" + key + "'"}
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, &ParseError{Tool: "tune2fs", Input: input, Reason: "invalid '" + key + "': " + raw}
	}
	return v, nil
}
