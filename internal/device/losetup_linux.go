package device

import (
	"context"

	"github.com/imgshrink/imgshrink/internal/partition"
	"github.com/imgshrink/imgshrink/internal/utils"
)

// Losetup attaches images as loop devices with partition scanning.
type Losetup struct {
	Reader partition.Reader
}

func newPlatformAttacher(reader partition.Reader) Attacher {
	return &Losetup{Reader: reader}
}

// Tools lists the external commands this backend needs.
func Tools() []string { return []string{"losetup"} }

func (l *Losetup) Attach(ctx context.Context, image string) (*Device, error) {
	part, err := locatePartition(ctx, l.Reader, image)
	if err != nil {
		return nil, err
	}

	out, err := run(ctx, "attach", image, "losetup", "--find", "--show", "--partscan", image)
	if err != nil {
		return nil, err
	}
	id, err := ParseLosetupOutput(out)
	if err != nil {
		l.releaseStray(ctx, image, out)
		return nil, &Error{Op: "attach", Tool: "losetup", Path: image, Output: out, BaseErr: err}
	}

	dev := &Device{ID: id, Index: part.Index, Start: part.Start}
	node, err := resolveNode(ctx, id, LoopNodes(id, part.Index))
	if err != nil {
		if derr := l.Detach(context.WithoutCancel(ctx), dev); derr != nil {
			utils.PrintWarning("Failed to detach %s: %v", utils.StylePath(id), derr)
		}
		return nil, err
	}
	dev.PartitionPath = node

	utils.PrintDebug("Attached %s as %s (partition %s)", image, id, node)
	return dev, nil
}

func (l *Losetup) Detach(ctx context.Context, dev *Device) error {
	if dev == nil || dev.ID == "" {
		return nil
	}
	_, err := run(ctx, "detach", dev.ID, "losetup", "-d", dev.ID)
	return err
}

// releaseStray detaches loop devices losetup may have set up for image
// when its attach output could not be parsed. Devices named in out are
// released; otherwise the ones `losetup -j` reports for image.
func (l *Losetup) releaseStray(ctx context.Context, image, out string) {
	ctx = context.WithoutCancel(ctx)
	devices := loopDevices(out)
	if len(devices) == 0 {
		assoc, err := run(ctx, "find attached", image, "losetup", "-j", image)
		if err != nil {
			utils.PrintDebug("Could not list loop devices of %s: %v", image, err)
			return
		}
		devices = ParseLosetupAssociations(assoc)
	}
	for _, id := range devices {
		if err := l.Detach(ctx, &Device{ID: id}); err != nil {
			utils.PrintWarning("Failed to detach %s: %v", utils.StylePath(id), err)
		}
	}
}
