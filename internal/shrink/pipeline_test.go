package shrink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/imgshrink/imgshrink/internal/compress"
	"github.com/imgshrink/imgshrink/internal/device"
	"github.com/imgshrink/imgshrink/internal/e2fs"
	"github.com/imgshrink/imgshrink/internal/partition"
)

const (
	testBlockSize = 1024
	testStart     = 4 * 1024 * 1024
	testBlocks    = 200000
	testMinimum   = 190000
	testImageLen  = testStart + testBlocks*testBlockSize
)

type recorder struct{ calls []string }

func (r *recorder) add(call string) { r.calls = append(r.calls, call) }

type fakeAttacher struct {
	rec       *recorder
	dev       device.Device
	attachErr error
}

func (f *fakeAttacher) Attach(context.Context, string) (*device.Device, error) {
	f.rec.add("attach")
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	d := f.dev
	return &d, nil
}

func (f *fakeAttacher) Detach(context.Context, *device.Device) error {
	f.rec.add("detach")
	return nil
}

type fakeFS struct {
	rec       *recorder
	stats     e2fs.Stats
	minimum   int64
	statsErr  error
	checkErr  error
	minErr    error
	resizeErr error
	verifyErr error
	autoErr   error
	onResize  func()
}

func (f *fakeFS) ReadStats(context.Context, string) (*e2fs.Stats, error) {
	f.rec.add("stats")
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	s := f.stats
	return &s, nil
}

func (f *fakeFS) Check(_ context.Context, _ string, repair bool) (e2fs.Health, error) {
	f.rec.add("check")
	return e2fs.Healthy, f.checkErr
}

func (f *fakeFS) MinimumBlocks(context.Context, string) (int64, error) {
	f.rec.add("minimum")
	return f.minimum, f.minErr
}

func (f *fakeFS) Verify(context.Context, string) error {
	f.rec.add("verify")
	return f.verifyErr
}

func (f *fakeFS) Resize(ctx context.Context, _ string, target int64) error {
	f.rec.add("resize")
	if f.onResize != nil {
		f.onResize()
	}
	if f.resizeErr != nil {
		return f.resizeErr
	}
	return ctx.Err()
}

func (f *fakeFS) ZeroFree(context.Context, string) (bool, error) {
	f.rec.add("zerofree")
	return false, nil
}

func (f *fakeFS) InjectAutoexpand(context.Context, string) error {
	f.rec.add("autoexpand")
	return f.autoErr
}

type fakeTable struct {
	rec         *recorder
	written     partition.Spec
	boundary    int64 // 0: end of the written spec
	rewriteErr  error
	boundaryErr error
}

func (f *fakeTable) Read(context.Context, string) (*partition.Layout, error) {
	f.rec.add("read")
	return &partition.Layout{}, nil
}

func (f *fakeTable) Rewrite(_ context.Context, _ string, spec partition.Spec) error {
	f.rec.add("rewrite")
	f.written = spec
	return f.rewriteErr
}

func (f *fakeTable) FreeBoundary(context.Context, string) (int64, error) {
	f.rec.add("boundary")
	if f.boundaryErr != nil {
		return 0, f.boundaryErr
	}
	if f.boundary != 0 {
		return f.boundary, nil
	}
	return f.written.End, nil
}

type harness struct {
	rec      *recorder
	attacher *fakeAttacher
	fs       *fakeFS
	table    *fakeTable
	pipeline *Pipeline
	image    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	image := filepath.Join(t.TempDir(), "raspios.img")
	f, err := os.Create(image)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(testImageLen); err != nil {
		t.Fatal(err)
	}
	f.Close()

	rec := &recorder{}
	h := &harness{
		rec:      rec,
		attacher: &fakeAttacher{rec: rec, dev: device.Device{ID: "/dev/loop7", PartitionPath: "/dev/loop7p2", Index: 2, Start: testStart}},
		fs: &fakeFS{
			rec:     rec,
			stats:   e2fs.Stats{BlockCount: testBlocks, BlockSize: testBlockSize, FilesystemState: "clean"},
			minimum: testMinimum,
		},
		table: &fakeTable{rec: rec},
		image: image,
	}
	h.pipeline = &Pipeline{
		Attacher:   h.attacher,
		Inspector:  h.fs,
		Resizer:    h.fs,
		Partitions: h.table,
		Truncate:   partition.Truncate,
		Compress: func(_ context.Context, path string, s compress.Strategy, _ compress.Options) (string, error) {
			rec.add("compress")
			return compress.OutputPath(path, s), nil
		},
	}
	return h
}

func (h *harness) options() Options {
	return Options{Image: h.image, Autoexpand: true, ZeroFree: true, Verify: true}
}

func imageLen(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.Size()
}

func TestRunShrinks(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.Run(context.Background(), h.options())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCalls := []string{
		"attach", "stats", "check", "autoexpand", "minimum", "resize", "zerofree", "detach",
		"rewrite", "boundary", "attach", "verify", "detach",
	}
	if diff := cmp.Diff(wantCalls, h.rec.calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}

	wantStates := []State{Start, Attached, Checked, Planned, Resized, Detached, Repartitioned, Truncated, Reattached, Done}
	if diff := cmp.Diff(wantStates, res.States); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}

	wantSpec := partition.Spec{Index: 2, Start: testStart, End: testStart + 195000*testBlockSize}
	if diff := cmp.Diff(wantSpec, h.table.written); diff != "" {
		t.Errorf("spec mismatch (-want +got):\n%s", diff)
	}
	if res.Plan.Target != 195000 {
		t.Errorf("target = %d, want 195000", res.Plan.Target)
	}

	if got := imageLen(t, h.image); got != wantSpec.End {
		t.Errorf("image length = %d, want %d", got, wantSpec.End)
	}
	if res.NewSize != wantSpec.End || res.OldSize != testImageLen {
		t.Errorf("sizes = %d -> %d", res.OldSize, res.NewSize)
	}
	if res.Attaches != 2 || res.Detaches != 2 {
		t.Errorf("attaches=%d detaches=%d, want 2/2", res.Attaches, res.Detaches)
	}
}

func TestRunAlreadyMinimal(t *testing.T) {
	h := newHarness(t)
	h.fs.minimum = testBlocks

	res, err := h.pipeline.Run(context.Background(), h.options())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCalls := []string{"attach", "stats", "check", "autoexpand", "minimum", "detach"}
	if diff := cmp.Diff(wantCalls, h.rec.calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	wantStates := []State{Start, Attached, Checked, Planned, AlreadyMinimal, Done}
	if diff := cmp.Diff(wantStates, res.States); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if got := imageLen(t, h.image); got != testImageLen {
		t.Errorf("image length changed to %d", got)
	}
	if res.Attaches != res.Detaches {
		t.Errorf("attaches=%d detaches=%d", res.Attaches, res.Detaches)
	}
}

func TestRunCheckFailureStopsBeforeResize(t *testing.T) {
	h := newHarness(t)
	h.fs.checkErr = &e2fs.Error{Op: "check", Tool: "e2fsck", Path: "/dev/loop7p2", BaseErr: e2fs.ErrRepairRequired}

	res, err := h.pipeline.Run(context.Background(), h.options())
	if ExitCode(err) != ExitCheck {
		t.Fatalf("exit code = %d, want %d (err %v)", ExitCode(err), ExitCheck, err)
	}
	if !errors.Is(err, e2fs.ErrRepairRequired) {
		t.Errorf("error does not wrap ErrRepairRequired: %v", err)
	}

	wantCalls := []string{"attach", "stats", "check", "detach"}
	if diff := cmp.Diff(wantCalls, h.rec.calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if res.Final() != Aborted {
		t.Errorf("final state = %s, want aborted", res.Final())
	}
	if got := imageLen(t, h.image); got != testImageLen {
		t.Errorf("image length changed to %d", got)
	}
}

func TestRunStageFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		setup    func(h *harness)
		wantCode int
		wantKind Kind
	}{
		{"stats", func(h *harness) { h.fs.statsErr = boom }, ExitStats, ToolInvocation},
		{"stats tool missing", func(h *harness) { h.fs.statsErr = e2fs.ErrToolUnavailable }, ExitToolMissing, Precondition},
		{"minimum", func(h *harness) { h.fs.minErr = boom }, ExitMinimumSize, ToolInvocation},
		{"resize", func(h *harness) { h.fs.resizeErr = boom }, ExitResize, ToolInvocation},
		{"rewrite", func(h *harness) { h.table.rewriteErr = boom }, ExitRewrite, ToolInvocation},
		{"boundary", func(h *harness) { h.table.boundaryErr = boom }, ExitBoundary, ToolInvocation},
		{"boundary inside filesystem", func(h *harness) { h.table.boundary = testStart + 1000 }, ExitBoundary, StateInconsistency},
		{"verify", func(h *harness) { h.fs.verifyErr = boom }, ExitCheck, ToolInvocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			res, err := h.pipeline.Run(context.Background(), h.options())
			var se *StageError
			if !errors.As(err, &se) {
				t.Fatalf("expected *StageError, got %v", err)
			}
			if se.Code != tt.wantCode || se.Kind != tt.wantKind {
				t.Errorf("got code %d kind %s, want %d %s", se.Code, se.Kind, tt.wantCode, tt.wantKind)
			}
			if res.Final() != Aborted {
				t.Errorf("final state = %s, want aborted", res.Final())
			}
			if res.Attaches != res.Detaches {
				t.Errorf("attaches=%d detaches=%d", res.Attaches, res.Detaches)
			}
		})
	}
}

func TestRunAttachFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"partition table", &partition.Error{Op: "read table", Tool: "parted", BaseErr: errors.New("exit status 1")}, ExitPartitionRead},
		{"partition parse", &partition.ParseError{Tool: "parted", Reason: "short device line"}, ExitPartitionRead},
		{"no partition", &device.Error{Op: "locate partition", BaseErr: device.ErrNoPartition}, ExitPartitionRead},
		{"no device", &device.Error{Op: "attach", Tool: "losetup", BaseErr: &device.ParseError{Tool: "losetup"}}, ExitNoDevice},
		{"node missing", &device.Error{Op: "resolve partition node", BaseErr: device.ErrNodeNotFound}, ExitNodeNotFound},
		{"losetup", &device.Error{Op: "attach", Tool: "losetup", BaseErr: errors.New("exit status 1")}, ExitAttach},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.attacher.attachErr = tt.err

			res, err := h.pipeline.Run(context.Background(), h.options())
			if got := ExitCode(err); got != tt.wantCode {
				t.Errorf("exit code = %d, want %d", got, tt.wantCode)
			}
			if diff := cmp.Diff([]string{"attach"}, h.rec.calls); diff != "" {
				t.Errorf("call order mismatch (-want +got):\n%s", diff)
			}
			if res.Detaches != 0 {
				t.Errorf("detached a device that was never attached")
			}
		})
	}
}

func TestRunAutoexpandFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.fs.autoErr = e2fs.ErrNoRcLocal

	if _, err := h.pipeline.Run(context.Background(), h.options()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunSkipsOptionalHooks(t *testing.T) {
	h := newHarness(t)
	opts := Options{Image: h.image}

	if _, err := h.pipeline.Run(context.Background(), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, call := range h.rec.calls {
		switch call {
		case "autoexpand", "zerofree", "verify":
			t.Errorf("unexpected call %q", call)
		}
	}
}

func TestRunCompresses(t *testing.T) {
	h := newHarness(t)
	opts := h.options()
	opts.Strategy = compress.XZ

	res, err := h.pipeline.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != h.image+".xz" {
		t.Errorf("output = %q", res.Output)
	}
	if got := res.States[len(res.States)-2]; got != Compressed {
		t.Errorf("state before done = %s, want compressed", got)
	}
	if last := h.rec.calls[len(h.rec.calls)-1]; last != "compress" {
		t.Errorf("compress ran before cleanup finished: %v", h.rec.calls)
	}
}

func TestRunCompressFailureCodes(t *testing.T) {
	for strategy, want := range map[compress.Strategy]int{compress.Gzip: ExitCompressGzip, compress.XZ: ExitCompressXZ} {
		h := newHarness(t)
		h.pipeline.Compress = func(context.Context, string, compress.Strategy, compress.Options) (string, error) {
			return "", errors.New("disk full")
		}
		opts := h.options()
		opts.Strategy = strategy
		_, err := h.pipeline.Run(context.Background(), opts)
		if got := ExitCode(err); got != want {
			t.Errorf("%s: exit code = %d, want %d", strategy, got, want)
		}
	}
}

func TestRunRejectsUnknownStrategyUpFront(t *testing.T) {
	h := newHarness(t)
	opts := h.options()
	opts.Strategy = compress.Strategy("lz4")

	_, err := h.pipeline.Run(context.Background(), opts)
	if !errors.Is(err, compress.ErrUnsupportedStrategy) {
		t.Fatalf("expected ErrUnsupportedStrategy, got %v", err)
	}
	if len(h.rec.calls) != 0 {
		t.Errorf("pipeline ran stages: %v", h.rec.calls)
	}
}

func TestRunMissingImage(t *testing.T) {
	h := newHarness(t)
	opts := h.options()
	opts.Image = filepath.Join(t.TempDir(), "missing.img")

	res, err := h.pipeline.Run(context.Background(), opts)
	if ExitCode(err) != ExitImageMissing {
		t.Fatalf("exit code = %d, want %d", ExitCode(err), ExitImageMissing)
	}
	if res.Final() != Aborted {
		t.Errorf("final state = %s", res.Final())
	}
}

func TestRunLockedImage(t *testing.T) {
	h := newHarness(t)
	held, err := e2fs.AcquireLock(h.image, true)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Close()

	_, err = h.pipeline.Run(context.Background(), h.options())
	if ExitCode(err) != ExitLocked {
		t.Fatalf("exit code = %d, want %d (%v)", ExitCode(err), ExitLocked, err)
	}
	if len(h.rec.calls) != 0 {
		t.Errorf("pipeline ran stages: %v", h.rec.calls)
	}
}

func TestRunCancelledDetaches(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.fs.onResize = cancel

	res, err := h.pipeline.Run(ctx, h.options())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Attaches != 1 || res.Detaches != 1 {
		t.Errorf("attaches=%d detaches=%d, want 1/1", res.Attaches, res.Detaches)
	}
	if h.rec.calls[len(h.rec.calls)-1] != "detach" {
		t.Errorf("last call = %q, want detach", h.rec.calls[len(h.rec.calls)-1])
	}
}

func TestInspect(t *testing.T) {
	h := newHarness(t)

	rep, err := h.pipeline.Inspect(context.Background(), h.image)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if diff := cmp.Diff([]string{"attach", "stats", "minimum", "detach"}, h.rec.calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if rep.Plan.Target != 195000 {
		t.Errorf("target = %d", rep.Plan.Target)
	}
	if rep.NewImageSize() != testStart+195000*testBlockSize {
		t.Errorf("NewImageSize() = %d", rep.NewImageSize())
	}
	if got := imageLen(t, h.image); got != testImageLen {
		t.Errorf("image modified: length %d", got)
	}
}

func TestCheckPrivilege(t *testing.T) {
	orig := geteuid
	defer func() { geteuid = orig }()

	geteuid = func() int { return 1000 }
	err := CheckPrivilege()
	if ExitCode(err) != ExitPrivilege || !errors.Is(err, ErrInsufficientPrivilege) {
		t.Errorf("CheckPrivilege() as user = %v", err)
	}

	geteuid = func() int { return 0 }
	if err := CheckPrivilege(); err != nil {
		t.Errorf("CheckPrivilege() as root = %v", err)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("nil error should exit 0")
	}
	if ExitCode(errors.New("plain")) != ExitGeneric {
		t.Error("plain error should exit 1")
	}
	wrapped := errors.Join(errors.New("context"), &StageError{Stage: "resize", Code: ExitResize, Err: errors.New("x")})
	if ExitCode(wrapped) != ExitResize {
		t.Errorf("wrapped stage error exit = %d", ExitCode(wrapped))
	}
}

func TestCopyImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "raspios.img")
	if err := os.WriteFile(src, make([]byte, 4*1024*1024), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	dst := filepath.Join(dir, "small.img")
	if err := CopyImage(ctx, src, dst); err != nil {
		t.Fatalf("CopyImage: %v", err)
	}
	if info, err := os.Stat(dst); err != nil || info.Size() != 4*1024*1024 {
		t.Fatalf("copy = %v, %v", info, err)
	}

	err := CopyImage(ctx, src, src)
	var se *StageError
	if !errors.As(err, &se) || se.Code != ExitCopy || se.Kind != Precondition {
		t.Fatalf("CopyImage onto itself = %v, want precondition exit %d", err, ExitCopy)
	}
	if info, _ := os.Stat(src); info.Size() != 4*1024*1024 {
		t.Fatalf("source image truncated to %d bytes", info.Size())
	}

	if err := CopyImage(ctx, filepath.Join(dir, "missing.img"), dst); ExitCode(err) != ExitImageMissing {
		t.Errorf("CopyImage of missing source exit = %d, want %d", ExitCode(err), ExitImageMissing)
	}
}
