package device

import (
	"context"

	"github.com/imgshrink/imgshrink/internal/partition"
	"github.com/imgshrink/imgshrink/internal/utils"
)

// Hdiutil attaches images without mounting them.
type Hdiutil struct {
	Reader partition.Reader
}

func newPlatformAttacher(reader partition.Reader) Attacher {
	return &Hdiutil{Reader: reader}
}

// Tools lists the external commands this backend needs.
func Tools() []string { return []string{"hdiutil"} }

func (h *Hdiutil) Attach(ctx context.Context, image string) (*Device, error) {
	part, err := locatePartition(ctx, h.Reader, image)
	if err != nil {
		return nil, err
	}

	out, err := run(ctx, "attach", image, "hdiutil", "attach",
		"-imagekey", "diskimage-class=CRawDiskImage", "-nomount", image)
	if err != nil {
		return nil, err
	}
	id, err := ParseHdiutilOutput(out)
	if err != nil {
		// Two disks in the output still means hdiutil attached something.
		for _, disk := range hdiutilDisks(out) {
			if derr := h.Detach(context.WithoutCancel(ctx), &Device{ID: disk}); derr != nil {
				utils.PrintWarning("Failed to detach %s: %v", utils.StylePath(disk), derr)
			}
		}
		return nil, &Error{Op: "attach", Tool: "hdiutil", Path: image, Output: out, BaseErr: err}
	}

	dev := &Device{ID: id, Index: part.Index, Start: part.Start}
	node, err := resolveNode(ctx, id, DiskNodes(id, part.Index))
	if err != nil {
		if derr := h.Detach(context.WithoutCancel(ctx), dev); derr != nil {
			utils.PrintWarning("Failed to detach %s: %v", utils.StylePath(id), derr)
		}
		return nil, err
	}
	dev.PartitionPath = node

	utils.PrintDebug("Attached %s as %s (partition %s)", image, id, node)
	return dev, nil
}

func (h *Hdiutil) Detach(ctx context.Context, dev *Device) error {
	if dev == nil || dev.ID == "" {
		return nil
	}
	_, err := run(ctx, "detach", dev.ID, "hdiutil", "detach", dev.ID)
	return err
}
