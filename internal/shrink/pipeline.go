package shrink

import (
	"context"
	"errors"
	"fmt"

	"github.com/imgshrink/imgshrink/internal/compress"
	"github.com/imgshrink/imgshrink/internal/device"
	"github.com/imgshrink/imgshrink/internal/e2fs"
	"github.com/imgshrink/imgshrink/internal/partition"
	"github.com/imgshrink/imgshrink/internal/utils"
)

// State is a pipeline stage boundary.
type State int

const (
	Start State = iota
	Attached
	Checked
	Planned
	AlreadyMinimal
	Resized
	Detached
	Repartitioned
	Truncated
	Reattached
	Compressed
	Done
	Aborted
)

var stateNames = [...]string{
	Start:          "start",
	Attached:       "attached",
	Checked:        "checked",
	Planned:        "planned",
	AlreadyMinimal: "already-minimal",
	Resized:        "resized",
	Detached:       "detached",
	Repartitioned:  "repartitioned",
	Truncated:      "truncated",
	Reattached:     "reattached",
	Compressed:     "compressed",
	Done:           "done",
	Aborted:        "aborted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Inspector reads and checks the filesystem on an attached partition.
type Inspector interface {
	ReadStats(ctx context.Context, device string) (*e2fs.Stats, error)
	Check(ctx context.Context, device string, repairAllowed bool) (e2fs.Health, error)
	MinimumBlocks(ctx context.Context, device string) (int64, error)
	Verify(ctx context.Context, device string) error
}

// Resizer changes the filesystem on an attached partition.
type Resizer interface {
	Resize(ctx context.Context, device string, targetBlocks int64) error
	ZeroFree(ctx context.Context, device string) (bool, error)
	InjectAutoexpand(ctx context.Context, device string) error
}

// CompressFunc replaces path with a compressed copy and returns its path.
type CompressFunc func(ctx context.Context, path string, s compress.Strategy, opts compress.Options) (string, error)

// Options are fixed for one run.
type Options struct {
	Image      string
	Repair     bool
	Autoexpand bool
	ZeroFree   bool
	Verify     bool
	Strategy   compress.Strategy
	Compress   compress.Options
}

// Result describes a finished or aborted run.
type Result struct {
	Image    string
	Output   string
	OldSize  int64
	NewSize  int64
	Health   e2fs.Health
	Plan     ShrinkPlan
	Spec     partition.Spec
	Boundary int64
	States   []State
	Attaches int
	Detaches int
}

// Final returns the last state the run reached.
func (r *Result) Final() State {
	if len(r.States) == 0 {
		return Start
	}
	return r.States[len(r.States)-1]
}

// Pipeline sequences attach, check, plan, resize, repartition, truncate
// and compress for one image. It owns the attached device for the run and
// detaches it on every exit path.
type Pipeline struct {
	Attacher   device.Attacher
	Inspector  Inspector
	Resizer    Resizer
	Partitions partition.Rewriter
	Compress   CompressFunc
	Truncate   func(image string, length int64) error
}

// New wires a pipeline to the host tools, using rw for partition tables.
func New(rw partition.Rewriter) *Pipeline {
	return &Pipeline{
		Attacher:   device.New(rw),
		Inspector:  e2fs.Tools{},
		Resizer:    e2fs.Tools{},
		Partitions: rw,
		Compress:   compress.Compress,
		Truncate:   partition.Truncate,
	}
}

func (p *Pipeline) enter(res *Result, s State) {
	utils.PrintDebug("pipeline: %s", s)
	res.States = append(res.States, s)
}

func (p *Pipeline) attach(ctx context.Context, image string, res *Result) (*device.Device, error) {
	dev, err := p.Attacher.Attach(ctx, image)
	if err != nil {
		return nil, attachError(err)
	}
	res.Attaches++
	utils.PrintMessage("Attached %s as %s", utils.StylePath(image), utils.StylePath(dev.ID))
	return dev, nil
}

// detach is best-effort and runs even after ctx is cancelled.
func (p *Pipeline) detach(ctx context.Context, dev *device.Device, res *Result) {
	res.Detaches++
	if err := p.Attacher.Detach(context.WithoutCancel(ctx), dev); err != nil {
		utils.PrintWarning("Failed to detach %s: %v", utils.StylePath(dev.ID), err)
		return
	}
	utils.PrintDebug("Detached %s", dev.ID)
}

// Run shrinks opts.Image in place. On failure the returned error is a
// *StageError and the Result holds the states reached before Aborted.
func (p *Pipeline) Run(ctx context.Context, opts Options) (res *Result, err error) {
	res = &Result{Image: opts.Image, Output: opts.Image}
	p.enter(res, Start)

	var (
		lock *e2fs.Lock
		dev  *device.Device
	)
	defer func() {
		if dev != nil {
			p.detach(ctx, dev, res)
		}
		if lock != nil {
			lock.Close()
		}
		if err != nil {
			p.enter(res, Aborted)
		}
	}()

	if opts.Strategy == "" {
		opts.Strategy = compress.None
	}
	if err = compress.Available(opts.Strategy); err != nil {
		return res, compressError(opts.Strategy, err)
	}

	res.OldSize, err = utils.FileSize(opts.Image)
	if err != nil {
		return res, stageErr("open image", Precondition, ExitImageMissing, err)
	}

	lock, err = e2fs.AcquireLock(opts.Image, true)
	if err != nil {
		if errors.Is(err, e2fs.ErrLocked) {
			return res, stageErr("lock image", Precondition, ExitLocked, err)
		}
		return res, stageErr("lock image", Precondition, ExitImageMissing, err)
	}

	// Attached
	dev, err = p.attach(ctx, opts.Image, res)
	if err != nil {
		return res, err
	}
	p.enter(res, Attached)
	node := dev.PartitionPath

	stats, err := p.Inspector.ReadStats(ctx, node)
	if err != nil {
		return res, toolError("read filesystem metadata", ExitStats, err)
	}
	utils.PrintDebug("Filesystem: %d blocks of %d bytes, state %s", stats.BlockCount, stats.BlockSize, stats.FilesystemState)

	// Checked
	res.Health, err = p.Inspector.Check(ctx, node, opts.Repair)
	if err != nil {
		return res, toolError("check filesystem", ExitCheck, err)
	}
	p.enter(res, Checked)

	if opts.Autoexpand {
		if aerr := p.Resizer.InjectAutoexpand(ctx, node); aerr != nil {
			if errors.Is(aerr, e2fs.ErrNoRcLocal) {
				utils.PrintWarning("No /etc/rc.local in the filesystem, autoexpand on first boot not enabled.")
			} else {
				utils.PrintWarning("Could not enable autoexpand on first boot: %v", aerr)
			}
		}
	}

	// Planned
	minimum, err := p.Inspector.MinimumBlocks(ctx, node)
	if err != nil {
		return res, toolError("measure minimum size", ExitMinimumSize, err)
	}
	res.Plan = Plan(stats.BlockCount, minimum, stats.BlockSize)
	p.enter(res, Planned)
	utils.PrintDebug("Plan: %s", res.Plan)

	if res.Plan.NoOp() {
		p.enter(res, AlreadyMinimal)
		utils.PrintNote("Filesystem is already at its minimum size (%s blocks).", utils.StyleNumber(res.Plan.Current))
		p.detach(ctx, dev, res)
		dev = nil
		res.NewSize = res.OldSize
		return res, p.finish(ctx, opts, res)
	}

	// Resized
	if err = p.Resizer.Resize(ctx, node, res.Plan.Target); err != nil {
		return res, toolError("resize filesystem", ExitResize, err)
	}
	p.enter(res, Resized)

	if opts.ZeroFree {
		if ran, zerr := p.Resizer.ZeroFree(ctx, node); zerr != nil {
			utils.PrintDebug("zero-fill skipped: %v", zerr)
		} else if ran {
			utils.PrintDebug("Free blocks zeroed on %s", node)
		}
	}

	// Detached
	res.Spec = partition.NewSpec(dev.Index, dev.Start, res.Plan.Target, res.Plan.BlockSize)
	p.detach(ctx, dev, res)
	dev = nil
	p.enter(res, Detached)

	// Repartitioned
	imageLen, err := utils.FileSize(opts.Image)
	if err != nil {
		return res, stageErr("rewrite partition", StateInconsistency, ExitRewrite, err)
	}
	if err = res.Spec.Validate(imageLen); err != nil {
		return res, stageErr("rewrite partition", StateInconsistency, ExitRewrite, err)
	}
	utils.PrintMessage("Resizing partition #%s to %s", utils.StyleNumber(res.Spec.Index),
		utils.StyleNumber(utils.FormatBytes(res.Spec.Size())))
	if err = p.Partitions.Rewrite(ctx, opts.Image, res.Spec); err != nil {
		return res, stageErr("rewrite partition", ToolInvocation, ExitRewrite, err)
	}
	p.enter(res, Repartitioned)

	// Truncated
	res.Boundary, err = p.Partitions.FreeBoundary(ctx, opts.Image)
	if err != nil {
		return res, stageErr("read partition boundary", ToolInvocation, ExitBoundary, err)
	}
	if res.Boundary < res.Spec.End || res.Boundary > imageLen {
		err = fmt.Errorf("partition table ends at %d, expected between %d and %d", res.Boundary, res.Spec.End, imageLen)
		return res, stageErr("read partition boundary", StateInconsistency, ExitBoundary, err)
	}
	if err = p.Truncate(opts.Image, res.Boundary); err != nil {
		return res, stageErr("truncate image", ToolInvocation, ExitTruncate, err)
	}
	p.enter(res, Truncated)

	// Reattached
	dev, err = p.attach(ctx, opts.Image, res)
	if err != nil {
		return res, err
	}
	if dev.Index != res.Spec.Index || dev.Start != res.Spec.Start {
		err = fmt.Errorf("partition moved to #%d at %d after rewrite", dev.Index, dev.Start)
		return res, stageErr("reattach", StateInconsistency, ExitBoundary, err)
	}
	p.enter(res, Reattached)

	if opts.Verify {
		if err = p.Inspector.Verify(ctx, dev.PartitionPath); err != nil {
			return res, toolError("verify filesystem", ExitCheck, err)
		}
	}
	p.detach(ctx, dev, res)
	dev = nil

	res.NewSize, err = utils.FileSize(opts.Image)
	if err != nil {
		return res, stageErr("truncate image", StateInconsistency, ExitTruncate, err)
	}
	return res, p.finish(ctx, opts, res)
}

// finish compresses when asked and enters Done.
func (p *Pipeline) finish(ctx context.Context, opts Options, res *Result) error {
	if opts.Strategy != compress.None {
		out, err := p.Compress(ctx, opts.Image, opts.Strategy, opts.Compress)
		if err != nil {
			return compressError(opts.Strategy, err)
		}
		res.Output = out
		p.enter(res, Compressed)
	}
	p.enter(res, Done)
	return nil
}
