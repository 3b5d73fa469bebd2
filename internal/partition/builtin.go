package partition

import (
	"context"
	"fmt"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"

	"github.com/imgshrink/imgshrink/internal/utils"
)

const builtinTool = "go-diskfs"

// Builtin reads and rewrites partition tables in-process with go-diskfs.
// Only MBR tables can be rewritten: truncating a GPT image would cut off
// the backup header.
type Builtin struct{}

func openImage(image string, mode diskfs.OpenModeOption) (*disk.Disk, error) {
	d, err := diskfs.Open(image, diskfs.WithOpenMode(mode))
	if err != nil {
		return nil, &Error{Op: "open image", Tool: builtinTool, Path: image, BaseErr: err}
	}
	return d, nil
}

// Read returns the partition table of image.
func (Builtin) Read(ctx context.Context, image string) (*Layout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := openImage(image, diskfs.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	return readLayout(d, image)
}

func readLayout(d *disk.Disk, image string) (*Layout, error) {
	raw, err := d.GetPartitionTable()
	if err != nil {
		return nil, &Error{Op: "read table", Tool: builtinTool, Path: image, BaseErr: err}
	}

	layout := &Layout{DiskSize: d.Size, SectorSize: d.LogicalBlocksize}

	switch table := raw.(type) {
	case *mbr.Table:
		layout.Scheme = SchemeMBR
		sector := sectorOr(int64(table.LogicalSectorSize), layout.SectorSize)
		layout.SectorSize = sector
		for i, p := range table.Partitions {
			if p == nil || p.Type == mbr.Empty || p.Size == 0 {
				continue
			}
			if isExtended(p.Type) {
				// Logical partitions live inside the container and are not listed here.
				return nil, &Error{Op: "read table", Tool: builtinTool, Path: image,
					BaseErr: fmt.Errorf("%w: extended partition %d holds logical partitions", ErrUnsupportedTable, i+1)}
			}
			start := int64(p.Start) * sector
			size := int64(p.Size) * sector
			layout.Entries = append(layout.Entries, Entry{
				Index:      i + 1,
				Start:      start,
				End:        start + size - 1,
				Size:       size,
				Filesystem: mbrFilesystem(p.Type),
			})
		}
	case *gpt.Table:
		layout.Scheme = SchemeGPT
		sector := sectorOr(int64(table.LogicalSectorSize), layout.SectorSize)
		layout.SectorSize = sector
		for i, p := range table.Partitions {
			if p == nil || p.Type == gpt.Unused {
				continue
			}
			start := int64(p.Start) * sector
			end := (int64(p.End)+1)*sector - 1
			layout.Entries = append(layout.Entries, Entry{
				Index: i + 1,
				Start: start,
				End:   end,
				Size:  end - start + 1,
				Name:  p.Name,
			})
		}
	default:
		return nil, &Error{Op: "read table", Tool: builtinTool, Path: image,
			BaseErr: fmt.Errorf("%w: %T", ErrUnsupportedTable, raw)}
	}
	return layout, nil
}

// Rewrite sets the size of MBR partition spec.Index, keeping its start,
// type and boot flag.
func (Builtin) Rewrite(ctx context.Context, image string, spec Spec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := openImage(image, diskfs.ReadWriteExclusive)
	if err != nil {
		return err
	}
	defer d.Close()

	raw, err := d.GetPartitionTable()
	if err != nil {
		return &Error{Op: "read table", Tool: builtinTool, Path: image, BaseErr: err}
	}
	table, ok := raw.(*mbr.Table)
	if !ok {
		return &Error{Op: "rewrite partition", Tool: builtinTool, Path: image,
			BaseErr: fmt.Errorf("%w: only MBR tables can be rewritten in-process", ErrUnsupportedTable)}
	}
	if spec.Index < 1 || spec.Index > len(table.Partitions) || table.Partitions[spec.Index-1] == nil {
		return &Error{Op: "rewrite partition", Tool: builtinTool, Path: image,
			BaseErr: fmt.Errorf("partition %d not found", spec.Index)}
	}

	sector := sectorOr(int64(table.LogicalSectorSize), d.LogicalBlocksize)
	if spec.Start%sector != 0 {
		return &Error{Op: "rewrite partition", Tool: builtinTool, Path: image,
			BaseErr: fmt.Errorf("start %d is not aligned to %d-byte sectors", spec.Start, sector)}
	}

	orig := table.Partitions[spec.Index-1]
	if int64(orig.Start)*sector != spec.Start {
		return &Error{Op: "rewrite partition", Tool: builtinTool, Path: image,
			BaseErr: fmt.Errorf("partition %d starts at %d, not %d", spec.Index, int64(orig.Start)*sector, spec.Start)}
	}

	updated := *orig
	updated.Size = uint32((spec.Size() + sector - 1) / sector)
	table.Partitions[spec.Index-1] = &updated

	utils.PrintDebug("[rewrite partition] %s #%d: %d -> %d sectors", image, spec.Index, orig.Size, updated.Size)

	if err := d.Partition(table); err != nil {
		return &Error{Op: "write table", Tool: builtinTool, Path: image, BaseErr: err}
	}
	return nil
}

// FreeBoundary returns the byte after the last partition.
func (b Builtin) FreeBoundary(ctx context.Context, image string) (int64, error) {
	layout, err := b.Read(ctx, image)
	if err != nil {
		return 0, err
	}
	return layout.Boundary()
}

func sectorOr(v, fallback int64) int64 {
	if v > 0 {
		return v
	}
	if fallback > 0 {
		return fallback
	}
	return 512
}

func isExtended(t mbr.Type) bool {
	switch t {
	case mbr.ExtendedCHS, mbr.ExtendedLBA, mbr.LinuxExtended:
		return true
	}
	return false
}

func mbrFilesystem(t mbr.Type) string {
	switch t {
	case mbr.Linux:
		return "linux"
	case mbr.Fat32LBA, mbr.Fat32CHS:
		return "fat32"
	}
	return fmt.Sprintf("0x%02x", uint8(t))
}
