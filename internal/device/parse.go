package device

import (
	"path/filepath"
	"strconv"
	"strings"
)

// ParseLosetupOutput extracts the loop device from `losetup --find --show`.
func ParseLosetupOutput(out string) (string, error) {
	devices := loopDevices(out)
	switch len(devices) {
	case 0:
		return "", &ParseError{Tool: "losetup", Input: out, Reason: "no device path"}
	case 1:
		return devices[0], nil
	}
	return "", &ParseError{Tool: "losetup", Input: out, Reason: "more than one device path"}
}

// loopDevices returns every line of out that is a device path.
func loopDevices(out string) []string {
	var devices []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "/dev/") {
			devices = append(devices, line)
		}
	}
	return devices
}

// ParseLosetupAssociations lists the loop devices backed by an image,
// from `losetup -j IMAGE`:
//
//	/dev/loop0: [66306]:1835 (/images/raspios.img)
func ParseLosetupAssociations(out string) []string {
	var devices []string
	for _, line := range strings.Split(out, "\n") {
		dev, _, ok := strings.Cut(strings.TrimSpace(line), ":")
		if ok && strings.HasPrefix(dev, "/dev/loop") {
			devices = append(devices, dev)
		}
	}
	return devices
}

// ParseHdiutilOutput extracts the whole-disk device from `hdiutil attach`.
//
//	/dev/disk4          	FDisk_partition_scheme
//	/dev/disk4s1        	Windows_FAT_32
//	/dev/disk4s2        	Linux
func ParseHdiutilOutput(out string) (string, error) {
	order := hdiutilDisks(out)
	switch len(order) {
	case 0:
		return "", &ParseError{Tool: "hdiutil", Input: out, Reason: "no device path"}
	case 1:
		return order[0], nil
	}
	return "", &ParseError{Tool: "hdiutil", Input: out, Reason: "more than one disk"}
}

// hdiutilDisks returns the whole disks named in hdiutil output, in order.
func hdiutilDisks(out string) []string {
	seen := map[string]struct{}{}
	var order []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "/dev/disk") {
			continue
		}
		disk := wholeDisk(fields[0])
		if _, ok := seen[disk]; !ok {
			seen[disk] = struct{}{}
			order = append(order, disk)
		}
	}
	return order
}

// wholeDisk strips a trailing slice suffix: /dev/disk4s2 -> /dev/disk4.
func wholeDisk(path string) string {
	base := strings.TrimPrefix(path, "/dev/disk")
	if i := strings.IndexByte(base, 's'); i > 0 {
		return "/dev/disk" + base[:i]
	}
	return path
}

// LoopNodes returns the partition node candidates for a loop device.
func LoopNodes(deviceID string, index int) []string {
	suffix := "p" + strconv.Itoa(index)
	return []string{
		deviceID + suffix,
		filepath.Join("/dev/mapper", filepath.Base(deviceID)+suffix),
	}
}

// DiskNodes returns the raw then block partition nodes for a macOS disk.
func DiskNodes(deviceID string, index int) []string {
	suffix := "s" + strconv.Itoa(index)
	return []string{
		filepath.Join("/dev", "r"+filepath.Base(deviceID)+suffix),
		deviceID + suffix,
	}
}
