package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// Error represents a failure attaching, resolving or detaching an image.
type Error struct {
	Op      string
	Tool    string
	Path    string
	Output  string
	BaseErr error
}

func (e *Error) Error() string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("Device operation '%s' failed.\n", utils.StyleAction(e.Op)))
	msg.WriteString(fmt.Sprintf("\tTarget:  %s\n", utils.StylePath(e.Path)))
	if e.Tool != "" {
		msg.WriteString(fmt.Sprintf("\tTool:    %s\n", utils.StyleCommand(e.Tool)))
	}
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
	case errors.Is(e.BaseErr, ErrNodeNotFound):
		return "The kernel did not create partition nodes. Check that the loop driver supports partitions (max_part)."
	case strings.Contains(e.Output, "Permission denied"), strings.Contains(e.Output, "Operation not permitted"):
		return "Attaching images requires root. Re-run with sudo."
	case strings.Contains(e.Output, "failed to set up loop device"), strings.Contains(e.Output, "could not find any free loop device"):
		return "No free loop device. Detach unused ones with 'losetup -D' or load the loop module."
	case strings.Contains(e.Output, "Resource busy"):
		return "The image is in use by another process."
	}
	return ""
}

// ParseError reports attach tool output that does not contain a device.
type ParseError struct {
	Tool   string
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s output %q: %s", e.Tool, strings.TrimSpace(e.Input), e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrNoDevice }
