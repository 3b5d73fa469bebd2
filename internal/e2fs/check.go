package e2fs

import (
	"context"
	"fmt"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// Health is the outcome of a successful Check.
type Health int

const (
	// Healthy means e2fsck found nothing to fix.
	Healthy Health = iota
	// Repaired means errors were found and corrected.
	Repaired
)

func (h Health) String() string {
	if h == Repaired {
		return "repaired"
	}
	return "healthy"
}

// backupSuperblock is the first backup superblock of a 4 KiB-block filesystem,
// used by the last repair pass when the primary superblock is damaged.
const backupSuperblock = "32768"

// e2fsck uses non-standard exit codes:
// 0 = No errors
// 1 = File system errors corrected
// 2 = File system errors corrected, system should be rebooted
// 4+ = Errors left uncorrected, operational error, usage error, ...
func fsckPassed(code int) bool {
	return code >= 0 && code < 4
}

func fsckHealth(code int) Health {
	if code == 0 {
		return Healthy
	}
	return Repaired
}

// Check runs e2fsck against device. The first pass only applies the automatic
// repairs e2fsck deems safe (-p). When it fails and repairAllowed is false,
// Check returns an *Error wrapping ErrRepairRequired. Otherwise it runs a
// destructive pass (-y), then a last pass from the backup superblock.
func Check(ctx context.Context, device string, repairAllowed bool) (Health, error) {
	if err := CheckDependencies([]string{"e2fsck"}); err != nil {
		return Healthy, err
	}

	utils.PrintMessage("Checking filesystem on %s...", utils.StylePath(device))

	out, err := runCommand(ctx, "check", device, "e2fsck", "-p", "-f", device)
	if code := exitCode(unwrap(err)); fsckPassed(code) {
		if len(out) > 0 {
			utils.PrintDebug("e2fsck output: %s", out)
		}
		h := fsckHealth(code)
		utils.PrintSuccess("Filesystem is %s.", h)
		return h, nil
	}
	if ctx.Err() != nil {
		return Healthy, ctx.Err()
	}

	if !repairAllowed {
		return Healthy, &Error{
			Op:      "check",
			Path:    device,
			Tool:    "e2fsck",
			Output:  out,
			BaseErr: ErrRepairRequired,
		}
	}

	utils.PrintWarning("Filesystem errors detected, attempting repair of %s", utils.StylePath(device))

	passes := [][]string{
		{"-y", "-f", device},
		{"-y", "-f", "-b", backupSuperblock, device},
	}

	var lastErr error
	for i, args := range passes {
		utils.PrintMessage("Repair pass %s of %s...", utils.StyleNumber(i+1), utils.StyleNumber(len(passes)))
		out, err := runCommand(ctx, "repair", device, "e2fsck", args...)
		if fsckPassed(exitCode(unwrap(err))) {
			utils.PrintDebug("e2fsck output: %s", out)
			utils.PrintSuccess("Filesystem repaired.")
			return Repaired, nil
		}
		if ctx.Err() != nil {
			return Healthy, ctx.Err()
		}
		lastErr = err
	}

	return Healthy, fmt.Errorf("filesystem repair failed: %w", lastErr)
}

// Verify runs a read-only check (-n -f) and fails on any reported problem.
func Verify(ctx context.Context, device string) error {
	if err := CheckDependencies([]string{"e2fsck"}); err != nil {
		return err
	}

	utils.PrintMessage("Verifying shrunk filesystem on %s...", utils.StylePath(device))

	if _, err := runCommand(ctx, "verify", device, "e2fsck", "-n", "-f", device); err != nil {
		return err
	}

	utils.PrintSuccess("Filesystem is clean.")
	return nil
}

// unwrap returns the execution error inside an *Error, or err itself.
func unwrap(err error) error {
	if e, ok := err.(*Error); ok {
		return e.BaseErr
	}
	return err
}
