package shrink

import (
	"errors"
	"fmt"

	"github.com/imgshrink/imgshrink/internal/compress"
	"github.com/imgshrink/imgshrink/internal/device"
	"github.com/imgshrink/imgshrink/internal/e2fs"
	"github.com/imgshrink/imgshrink/internal/partition"
)

// Process exit codes.
const (
	ExitGeneric       = 1
	ExitImageMissing  = 2
	ExitPrivilege     = 3
	ExitCopy          = 4
	ExitToolMissing   = 5
	ExitPartitionRead = 6
	ExitAttach        = 7
	ExitNoDevice      = 8
	ExitNodeNotFound  = 9
	ExitStats         = 10
	ExitCheck         = 11
	ExitMinimumSize   = 12
	ExitResize        = 13
	ExitRewrite       = 14
	ExitBoundary      = 15
	ExitTruncate      = 16
	ExitLocked        = 17
	ExitCompressGzip  = 18
	ExitCompressXZ    = 19
)

// ErrInsufficientPrivilege is returned when not running as root.
var ErrInsufficientPrivilege = errors.New("must be run as root")

// Kind classifies stage failures.
type Kind int

const (
	// Precondition failures happen before anything is attached or modified.
	Precondition Kind = iota
	// ToolInvocation failures come from an external tool or library call.
	ToolInvocation
	// StateInconsistency means the system is not in the state a stage expects.
	StateInconsistency
)

func (k Kind) String() string {
	switch k {
	case Precondition:
		return "precondition"
	case ToolInvocation:
		return "tool invocation"
	case StateInconsistency:
		return "state inconsistency"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// StageError is a pipeline failure with the exit code it maps to.
type StageError struct {
	Stage string
	Kind  Kind
	Code  int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code: 0 for nil, the stage code for
// a *StageError, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	return ExitGeneric
}

func stageErr(stage string, kind Kind, code int, err error) error {
	return &StageError{Stage: stage, Kind: kind, Code: code, Err: err}
}

// attachError classifies a failure from Attacher.Attach.
func attachError(err error) error {
	var perr *partition.Error
	var pparse *partition.ParseError
	switch {
	case errors.As(err, &perr), errors.As(err, &pparse), errors.Is(err, device.ErrNoPartition):
		return stageErr("read partition table", ToolInvocation, ExitPartitionRead, err)
	case errors.Is(err, device.ErrNodeNotFound):
		return stageErr("attach", StateInconsistency, ExitNodeNotFound, err)
	case errors.Is(err, device.ErrNoDevice):
		return stageErr("attach", ToolInvocation, ExitNoDevice, err)
	}
	return stageErr("attach", ToolInvocation, ExitAttach, err)
}

// toolError classifies e2fsprogs failures; a missing binary is a precondition.
func toolError(stage string, code int, err error) error {
	if errors.Is(err, e2fs.ErrToolUnavailable) {
		return stageErr(stage, Precondition, ExitToolMissing, err)
	}
	return stageErr(stage, ToolInvocation, code, err)
}

func compressError(s compress.Strategy, err error) error {
	code := ExitCompressGzip
	if s == compress.XZ {
		code = ExitCompressXZ
	}
	if errors.Is(err, compress.ErrUnsupportedStrategy) {
		return stageErr("compress", Precondition, code, err)
	}
	return stageErr("compress", ToolInvocation, code, err)
}
