package shrink

import (
	"context"
	"errors"

	"github.com/imgshrink/imgshrink/internal/device"
	"github.com/imgshrink/imgshrink/internal/e2fs"
	"github.com/imgshrink/imgshrink/internal/partition"
	"github.com/imgshrink/imgshrink/internal/utils"
)

// Report is what a shrink would do, computed without modifying the image.
type Report struct {
	Image     string
	ImageSize int64
	Device    device.Device
	Stats     *e2fs.Stats
	Plan      ShrinkPlan
	Spec      partition.Spec
}

// NewImageSize is the image length after the planned shrink.
func (r *Report) NewImageSize() int64 {
	if r.Plan.NoOp() {
		return r.ImageSize
	}
	return r.Spec.End
}

// Inspect attaches image, measures its filesystem and plans the shrink.
// Nothing is resized, checked destructively or rewritten.
func (p *Pipeline) Inspect(ctx context.Context, image string) (rep *Report, err error) {
	rep = &Report{Image: image}
	res := &Result{Image: image}

	rep.ImageSize, err = utils.FileSize(image)
	if err != nil {
		return nil, stageErr("open image", Precondition, ExitImageMissing, err)
	}

	lock, err := e2fs.AcquireLock(image, false)
	if err != nil {
		if errors.Is(err, e2fs.ErrLocked) {
			return nil, stageErr("lock image", Precondition, ExitLocked, err)
		}
		return nil, stageErr("lock image", Precondition, ExitImageMissing, err)
	}
	defer lock.Close()

	dev, err := p.attach(ctx, image, res)
	if err != nil {
		return nil, err
	}
	defer p.detach(ctx, dev, res)
	rep.Device = *dev

	rep.Stats, err = p.Inspector.ReadStats(ctx, dev.PartitionPath)
	if err != nil {
		return nil, toolError("read filesystem metadata", ExitStats, err)
	}

	minimum, err := p.Inspector.MinimumBlocks(ctx, dev.PartitionPath)
	if err != nil {
		return nil, toolError("measure minimum size", ExitMinimumSize, err)
	}

	rep.Plan = Plan(rep.Stats.BlockCount, minimum, rep.Stats.BlockSize)
	rep.Spec = partition.NewSpec(dev.Index, dev.Start, rep.Plan.Target, rep.Plan.BlockSize)
	return rep, nil
}
