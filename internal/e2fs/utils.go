package e2fs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// lookPath is swapped out by tests that must not depend on the host PATH.
var lookPath = exec.LookPath

// HasTool reports whether tool is available in PATH.
func HasTool(tool string) bool {
	_, err := lookPath(tool)
	return err == nil
}

// CheckDependencies verifies that all tools in the provided list are available in the system PATH.
// It returns a consolidated error listing all missing tools, or nil if all are present.
func CheckDependencies(tools []string) error {
	var missing []string

	for _, tool := range tools {
		if !HasTool(tool) {
			missing = append(missing, tool)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrToolUnavailable,
			utils.StyleError(strings.Join(missing, ", ")))
	}

	return nil
}

// runCommand executes a tool and wraps failures in e2fs.Error.
// The combined output is returned in both cases.
func runCommand(ctx context.Context, op, path, tool string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	utils.PrintDebug("[%s] Running %s %s", op, tool, strings.Join(args, " "))
	output, err := cmd.CombinedOutput()

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrToolUnavailable, tool)
		}
		return string(output), &Error{
			Op:      op,
			Path:    path,
			Tool:    tool,
			Output:  string(output),
			BaseErr: err,
		}
	}
	return string(output), nil
}

// exitCode extracts the process exit status from err, or -1 when the
// process did not run to completion.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err == nil {
		return 0
	}
	return -1
}
