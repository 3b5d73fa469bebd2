package partition

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// Parted drives GNU parted in machine-readable mode.
type Parted struct {
	// Binary defaults to "parted".
	Binary string
}

func (p Parted) binary() string {
	if p.Binary != "" {
		return p.Binary
	}
	return "parted"
}

func (p Parted) run(ctx context.Context, op, image string, args ...string) (string, error) {
	tool := p.binary()
	utils.PrintDebug("[%s] Running %s %s", op, tool, strings.Join(args, " "))
	output, err := exec.CommandContext(ctx, tool, args...).CombinedOutput()
	if err != nil {
		return string(output), &Error{Op: op, Tool: tool, Path: image, Output: string(output), BaseErr: err}
	}
	return string(output), nil
}

// Read returns the partition table of image.
func (p Parted) Read(ctx context.Context, image string) (*Layout, error) {
	out, err := p.run(ctx, "read table", image, "-ms", image, "unit", "B", "print")
	if err != nil {
		return nil, err
	}
	return ParsePartedOutput(out)
}

// Rewrite removes partition spec.Index and recreates it at the same start
// with the new end.
func (p Parted) Rewrite(ctx context.Context, image string, spec Spec) error {
	layout, err := p.Read(ctx, image)
	if err != nil {
		return err
	}
	if _, ok := layout.Find(spec.Index); !ok {
		return &Error{Op: "rewrite partition", Tool: p.binary(), Path: image,
			BaseErr: fmt.Errorf("partition %d not found", spec.Index)}
	}

	kind := "primary"
	if (Entry{Index: spec.Index}).Logical(layout.Scheme) {
		kind = "logical"
	}

	index := strconv.Itoa(spec.Index)
	if _, err := p.run(ctx, "remove partition", image, "-s", "-a", "minimal", image, "rm", index); err != nil {
		return err
	}

	start := strconv.FormatInt(spec.Start, 10) + "B"
	end := strconv.FormatInt(spec.End-1, 10) + "B"
	if _, err := p.run(ctx, "create partition", image, "-s", image, "unit", "B", "mkpart", kind, start, end); err != nil {
		return err
	}
	return nil
}

// FreeBoundary returns where the image can be cut after a rewrite.
func (p Parted) FreeBoundary(ctx context.Context, image string) (int64, error) {
	out, err := p.run(ctx, "read free space", image, "-ms", image, "unit", "B", "print", "free")
	if err != nil {
		return 0, err
	}
	layout, err := ParsePartedOutput(out)
	if err != nil {
		return 0, err
	}
	return layout.Boundary()
}

// ParsePartedOutput parses the output of `parted -ms IMG unit B print [free]`.
//
//	BYT;
//	/path/disk.img:3980394496B:file:512:512:msdos::;
//	1:4194304B:272629759B:268435456B:fat32::lba;
//	2:272629760B:3980394495B:3707764736B:ext4::;
//	1:3980394496B:3980394496B:0B:free;
func ParsePartedOutput(out string) (*Layout, error) {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Warning:") || strings.HasPrefix(line, "Error:") {
			continue
		}
		lines = append(lines, strings.TrimSuffix(line, ";"))
	}

	if len(lines) < 2 {
		return nil, &ParseError{Tool: "parted", Reason: "missing unit or device line"}
	}
	if lines[0] != "BYT" {
		return nil, &ParseError{Tool: "parted", Line: lines[0], Reason: "unit is not bytes"}
	}

	device := strings.Split(lines[1], ":")
	if len(device) < 6 {
		return nil, &ParseError{Tool: "parted", Line: lines[1], Reason: "short device line"}
	}
	diskSize, err := parseBytes(device[1])
	if err != nil {
		return nil, &ParseError{Tool: "parted", Line: lines[1], Reason: err.Error()}
	}
	sectorSize, err := strconv.ParseInt(device[3], 10, 64)
	if err != nil {
		return nil, &ParseError{Tool: "parted", Line: lines[1], Reason: "bad sector size"}
	}

	layout := &Layout{Scheme: device[5], DiskSize: diskSize, SectorSize: sectorSize}

	for _, line := range lines[2:] {
		fields := strings.Split(line, ":")
		if len(fields) < 5 {
			return nil, &ParseError{Tool: "parted", Line: line, Reason: "short partition line"}
		}
		entry, err := parseEntry(fields)
		if err != nil {
			return nil, &ParseError{Tool: "parted", Line: line, Reason: err.Error()}
		}
		if fields[4] == "free" {
			entry.Index = 0
			layout.Free = append(layout.Free, entry)
			continue
		}
		layout.Entries = append(layout.Entries, entry)
	}
	return layout, nil
}

func parseEntry(fields []string) (Entry, error) {
	index, err := strconv.Atoi(fields[0])
	if err != nil {
		return Entry{}, errors.New("bad partition number")
	}
	start, err := parseBytes(fields[1])
	if err != nil {
		return Entry{}, err
	}
	end, err := parseBytes(fields[2])
	if err != nil {
		return Entry{}, err
	}
	size, err := parseBytes(fields[3])
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Index: index, Start: start, End: end, Size: size, Filesystem: fields[4]}
	if len(fields) > 5 {
		e.Name = fields[5]
	}
	if len(fields) > 6 {
		e.Flags = fields[6]
	}
	return e, nil
}

func parseBytes(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSuffix(s, "B"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad byte value %q", s)
	}
	return v, nil
}
