package partition

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewSpec(t *testing.T) {
	spec := NewSpec(2, 272629760, 195000, 4096)
	if spec.End != 272629760+195000*4096 {
		t.Errorf("End = %d", spec.End)
	}
	if spec.Size() != 195000*4096 {
		t.Errorf("Size() = %d", spec.Size())
	}
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		imgLen  int64
		wantErr bool
	}{
		{"fits", Spec{Index: 2, Start: 1024, End: 4096}, 8192, false},
		{"ends at image end", Spec{Index: 2, Start: 1024, End: 8192}, 8192, false},
		{"past image end", Spec{Index: 2, Start: 1024, End: 8193}, 8192, true},
		{"empty", Spec{Index: 2, Start: 1024, End: 1024}, 8192, true},
		{"no index", Spec{Index: 0, Start: 0, End: 10}, 8192, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate(tt.imgLen)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, make([]byte, 8192), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Truncate(path, 4096); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 4096 {
		t.Errorf("size = %d, want 4096", info.Size())
	}

	if err := Truncate(path, 0); err == nil {
		t.Error("expected error truncating to zero")
	}
}

func TestNewBackend(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()

	lookPath = func(string) (string, error) { return "", os.ErrNotExist }
	rw, err := New("auto")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rw.(Builtin); !ok {
		t.Errorf("auto without parted = %T, want Builtin", rw)
	}

	lookPath = func(string) (string, error) { return "/usr/sbin/parted", nil }
	rw, err = New("auto")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rw.(Parted); !ok {
		t.Errorf("auto with parted = %T, want Parted", rw)
	}

	if _, err := New("fdisk"); err == nil {
		t.Error("expected error for unknown tool")
	}
}
