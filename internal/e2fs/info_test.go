package e2fs

import (
	"errors"
	"testing"
)

const tune2fsSample = `tune2fs 1.47.0 (5-Feb-2023)
Filesystem volume name:   rootfs
Last mounted on:          /
Filesystem UUID:          3d81d9e2-7d1b-4015-8c2c-29ec0875f762
Filesystem magic number:  0xEF53
Filesystem revision #:    1 (dynamic)
Filesystem features:      has_journal ext_attr resize_inode dir_index filetype extent flex_bg sparse_super large_file huge_file dir_nlink extra_isize metadata_csum
Filesystem state:         clean
Inode count:              116640
Block count:              466432
Reserved block count:     23321
Free blocks:              178802
Free inodes:              76540
Block size:               4096
Fragment size:            4096
`

func TestParseStats(t *testing.T) {
	stats, err := ParseStats(tune2fsSample)
	if err != nil {
		t.Fatalf("ParseStats: %v", err)
	}
	if stats.BlockCount != 466432 {
		t.Errorf("BlockCount = %d; want 466432", stats.BlockCount)
	}
	if stats.BlockSize != 4096 {
		t.Errorf("BlockSize = %d; want 4096", stats.BlockSize)
	}
	if stats.FreeBlocks != 178802 {
		t.Errorf("FreeBlocks = %d; want 178802", stats.FreeBlocks)
	}
	if stats.VolumeName != "rootfs" || stats.FilesystemState != "clean" {
		t.Errorf("unexpected name/state: %q %q", stats.VolumeName, stats.FilesystemState)
	}
	if !stats.HasFeature("has_journal") || stats.HasFeature("64bit") {
		t.Errorf("feature detection wrong: %v", stats.Features)
	}
	if got := stats.SizeBytes(); got != 466432*4096 {
		t.Errorf("SizeBytes = %d", got)
	}
	used, pct := stats.Usage()
	if used != (466432-178802)*4096 || pct <= 0 || pct >= 100 {
		t.Errorf("Usage = %d, %.2f", used, pct)
	}
}

func TestParseStatsMissingBlockSize(t *testing.T) {
	_, err := ParseStats("Block count: 100\n")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestParseStatsInvalidNumber(t *testing.T) {
	_, err := ParseStats("Block count: lots\nBlock size: 4096\n")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestParseStatsWrongMagic(t *testing.T) {
	_, err := ParseStats("Filesystem magic number: 0x1234\nBlock count: 10\nBlock size: 1024\n")
	if !errors.Is(err, ErrUnsupportedFilesystem) {
		t.Fatalf("expected ErrUnsupportedFilesystem, got %v", err)
	}
}

func TestParseMinimumSize(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"resize2fs 1.47.0 (5-Feb-2023)\nEstimated minimum size of the filesystem: 190000\n", 190000, false},
		{"Estimated minimum size of the filesystem:   42", 42, false},
		{"resize2fs 1.47.0 (5-Feb-2023)\n", 0, true},
		{"Estimated minimum size of the filesystem: abc\n", 0, true},
		{"Estimated minimum size of the filesystem: 0\n", 0, true},
	}
	for _, c := range cases {
		got, err := ParseMinimumSize(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseMinimumSize(%q) err = %v; wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if got != c.want {
			t.Errorf("ParseMinimumSize(%q) = %d; want %d", c.in, got, c.want)
		}
	}
}

func TestStatsType(t *testing.T) {
	tests := []struct {
		features []string
		want     string
	}{
		{[]string{"has_journal", "ext_attr", "extent", "flex_bg"}, "ext4"},
		{[]string{"has_journal", "ext_attr", "dir_index"}, "ext3"},
		{[]string{"ext_attr", "dir_index"}, "ext2"},
		{nil, "ext2"},
	}
	for _, tt := range tests {
		s := &Stats{Features: tt.features}
		if got := s.Type(); got != tt.want {
			t.Errorf("Type() with %v = %q, want %q", tt.features, got, tt.want)
		}
	}
}
