package e2fs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// Resize shrinks the filesystem on device to targetBlocks filesystem blocks.
// The caller must have run Check successfully first; resize2fs refuses to
// shrink a filesystem that was not checked since it was last mounted.
func Resize(ctx context.Context, device string, targetBlocks int64) error {
	if targetBlocks <= 0 {
		return fmt.Errorf("invalid target size %d blocks", targetBlocks)
	}
	if err := CheckDependencies([]string{"resize2fs"}); err != nil {
		return err
	}

	utils.PrintMessage("Shrinking filesystem on %s to %s blocks...",
		utils.StylePath(device), utils.StyleNumber(targetBlocks))

	out, err := runCommand(ctx, "resize", device, "resize2fs", "-p", device, strconv.FormatInt(targetBlocks, 10))
	if err != nil {
		return err
	}
	// resize2fs -p ends with "The filesystem on ... is now N (4k) blocks long."
	utils.PrintDebug("resize2fs: %s", utils.LastNonEmptyLine(out))

	utils.PrintSuccess("Filesystem shrunk to %s blocks.", utils.StyleNumber(targetBlocks))
	return nil
}

// ZeroFree overwrites unused blocks with zeros so the image compresses well.
// It is best-effort: a missing zerofree binary returns (false, nil).
func ZeroFree(ctx context.Context, device string) (bool, error) {
	if !HasTool("zerofree") {
		utils.PrintDebug("zerofree not found, skipping zero-fill of free blocks")
		return false, nil
	}

	utils.PrintMessage("Zeroing free blocks on %s...", utils.StylePath(device))
	if _, err := runCommand(ctx, "zero free blocks", device, "zerofree", device); err != nil {
		return false, err
	}
	return true, nil
}
