package partition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// ErrUnsupportedTable is returned by the builtin backend for tables it cannot rewrite.
var ErrUnsupportedTable = errors.New("unsupported partition table")

// Error represents a failure while reading or writing a partition table.
type Error struct {
	Op      string // "read table", "remove partition", ...
	Tool    string // "parted" or "go-diskfs"
	Path    string
	Output  string
	BaseErr error
}

func (e *Error) Error() string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("Partition table operation '%s' failed.\n", utils.StyleAction(e.Op)))
	msg.WriteString(fmt.Sprintf("\tTarget:  %s\n", utils.StylePath(e.Path)))
	msg.WriteString(fmt.Sprintf("\tTool:    %s\n", utils.StyleCommand(e.Tool)))
	if out := strings.TrimSpace(e.Output); out != "" {
		msg.WriteString(fmt.Sprintf("\tOutput:  %s\n", utils.StyleError(out)))
	}
	if hint := e.analyze(); hint != "" {
		msg.WriteString(fmt.Sprintf("\t%s    %s\n", utils.StyleHint("Hint:"), hint))
	}
	msg.WriteString(fmt.Sprintf("\tError:   %v", e.BaseErr))
	return msg.String()
}

func (e *Error) Unwrap() error { return e.BaseErr }

func (e *Error) analyze() string {
	switch {
	case errors.Is(e.BaseErr, ErrUnsupportedTable):
		return "Install parted or set partition_tool to 'parted'."
	case strings.Contains(e.Output, "unrecognised disk label"), strings.Contains(e.Output, "unrecognized disk label"):
		return "The image has no partition table. Only partitioned disk images can be shrunk."
	case strings.Contains(e.Output, "Device or resource busy"):
		return "The image is still attached. Detach it (losetup -d / hdiutil detach) and retry."
	}
	return ""
}

// ParseError reports partition tool output that does not match the expected format.
type ParseError struct {
	Tool   string
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("cannot parse %s output: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("cannot parse %s output line %q: %s", e.Tool, e.Line, e.Reason)
}
