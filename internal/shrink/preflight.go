package shrink

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"

	"github.com/imgshrink/imgshrink/internal/e2fs"
	"github.com/imgshrink/imgshrink/internal/utils"
)

var geteuid = unix.Geteuid

// CheckPrivilege fails unless the effective uid is root.
func CheckPrivilege() error {
	if geteuid() != 0 {
		return stageErr("privilege check", Precondition, ExitPrivilege, ErrInsufficientPrivilege)
	}
	return nil
}

// CheckTools verifies required commands are on PATH and notes missing optional ones.
func CheckTools(required, optional []string) error {
	if err := e2fs.CheckDependencies(required); err != nil {
		return stageErr("dependency check", Precondition, ExitToolMissing, err)
	}
	for _, tool := range optional {
		if !e2fs.HasTool(tool) {
			utils.PrintDebug("Optional tool %s not found", utils.StyleCommand(tool))
		}
	}
	return nil
}

// CopyImage copies src to dst so the copy can be shrunk instead of src.
func CopyImage(ctx context.Context, src, dst string) error {
	if !utils.FileExists(src) {
		return stageErr("copy image", Precondition, ExitImageMissing, errors.New(src+" does not exist"))
	}
	utils.PrintMessage("Copying %s to %s...", utils.StylePath(src), utils.StylePath(dst))
	if err := utils.CopyFile(ctx, src, dst); err != nil {
		if errors.Is(err, utils.ErrSameFile) {
			return stageErr("copy image", Precondition, ExitCopy, err)
		}
		return stageErr("copy image", ToolInvocation, ExitCopy, err)
	}
	return nil
}
