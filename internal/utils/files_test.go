package utils

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFilePreservesContentAndLength(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.img")
	dst := filepath.Join(dir, "dst.img")

	// 3 MiB: data, hole, trailing hole, so the final length comes from Truncate.
	data := make([]byte, 3*copyChunk)
	copy(data, []byte("boot sector"))
	if err := os.WriteFile(src, data, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	if err := CopyFile(context.Background(), src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("length = %d, want %d", len(got), len(data))
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("content mismatch")
	}
}

func TestCopyFileCancelled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.img")
	dst := filepath.Join(dir, "dst.img")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := CopyFile(ctx, src, dst); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if FileExists(dst) {
		t.Fatalf("partial copy should be removed")
	}
}

func TestCopyFileRefusesSameFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "raspios.img")
	data := bytes.Repeat([]byte("ext4"), copyChunk/4)
	if err := os.WriteFile(src, data, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	symlink := filepath.Join(dir, "link.img")
	if err := os.Symlink(src, symlink); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	hardlink := filepath.Join(dir, "hard.img")
	if err := os.Link(src, hardlink); err != nil {
		t.Fatalf("link: %v", err)
	}

	for _, dst := range []string{src, filepath.Join(dir, ".", "raspios.img"), symlink, hardlink} {
		if err := CopyFile(context.Background(), src, dst); !errors.Is(err, ErrSameFile) {
			t.Errorf("CopyFile(%s, %s) = %v, want ErrSameFile", src, dst, err)
		}
		got, err := os.ReadFile(src)
		if err != nil {
			t.Fatalf("read src: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("source changed after copy onto %s: %d bytes left", dst, len(got))
		}
	}
}
