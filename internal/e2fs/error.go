package e2fs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/imgshrink/imgshrink/internal/utils"
)

var (
	// ErrToolUnavailable is returned when an e2fsprogs binary is not on PATH.
	ErrToolUnavailable = errors.New("required filesystem tool is not installed")
	// ErrUnsupportedFilesystem is returned when the device does not hold an ext2/3/4 filesystem.
	ErrUnsupportedFilesystem = errors.New("not an ext2/ext3/ext4 filesystem")
	// ErrRepairRequired is returned by Check when errors were found and repair was not allowed.
	ErrRepairRequired = errors.New("filesystem has errors that need a destructive repair")
)

// Error represents a failure in filesystem tools (e2fsck, resize2fs, tune2fs, debugfs, ...).
// Usage: if err, ok := err.(*e2fs.Error); ok { ... }
type Error struct {
	Op      string // high level intent: "check", "resize"
	Tool    string // low level tool: "e2fsck", "resize2fs"
	Path    string // the device being manipulated
	Output  string // Captured Stderr/Stdout
	BaseErr error  // The underlying execution error
}

func (e *Error) Error() string {
	hint := e.analyze()
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("Filesystem operation '%s' failed.\n", utils.StyleAction(e.Op)))
	msg.WriteString(fmt.Sprintf("\tTarget:  %s\n", utils.StylePath(e.Path)))
	msg.WriteString(fmt.Sprintf("\tTool:    %s\n", utils.StyleCommand(e.Tool)))

	if cleanOut := strings.TrimSpace(e.Output); cleanOut != "" {
		msg.WriteString(fmt.Sprintf("\tOutput:  %s\n", utils.StyleError(cleanOut)))
	}

	if hint != "" {
		msg.WriteString(fmt.Sprintf("\t%s    %s\n", utils.StyleHint("Hint:"), hint))
	}

	msg.WriteString(fmt.Sprintf("\tError:   %v", e.BaseErr))

	return msg.String()
}

// Unwrap allows errors.Is/As to see the underlying BaseErr
func (e *Error) Unwrap() error {
	return e.BaseErr
}

func (e *Error) analyze() string {
	if errors.Is(e.BaseErr, ErrRepairRequired) {
		return "Re-run with -r to allow a destructive repair (e2fsck -y)."
	}

	out := e.Output

	if strings.Contains(out, "Permission denied") {
		return "Root privileges are required to access the attached device."
	}
	if strings.Contains(out, "Device or resource busy") {
		return "The device is in use. Unmount it and close any program holding the image."
	}
	if strings.Contains(out, "is mounted") {
		return "Cannot perform this operation while the filesystem is mounted."
	}

	// --- Tool Specific: Resize2fs ---
	if strings.Contains(out, "New size smaller than minimum") {
		return "The requested size is below the filesystem minimum. Re-run to recompute it."
	}
	if strings.Contains(out, "Please run 'e2fsck -f") {
		return "resize2fs requires a freshly checked filesystem. Run the check again."
	}

	// --- Tool Specific: E2fsck / Tune2fs ---
	if strings.Contains(out, "Bad magic number") || strings.Contains(out, "Couldn't find valid filesystem superblock") {
		return "The partition does not hold an ext2/ext3/ext4 filesystem."
	}
	if strings.Contains(out, "needs human intervention") || strings.Contains(out, "UNEXPECTED INCONSISTENCY") {
		return "Filesystem is badly damaged. Re-run with -r, or run 'e2fsck -fy' manually."
	}

	// --- Tool Specific: Debugfs ---
	if strings.Contains(out, "File not found") && strings.Contains(e.Tool, "debugfs") {
		return "The expected file does not exist inside the filesystem."
	}

	return ""
}

// ParseError reports tool output that does not match the expected format.
type ParseError struct {
	Tool   string
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s output: %s", e.Tool, e.Reason)
}
