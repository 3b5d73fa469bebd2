package partition

import (
	"fmt"
	"os/exec"

	"github.com/imgshrink/imgshrink/internal/config"
	"github.com/imgshrink/imgshrink/internal/utils"
)

var lookPath = exec.LookPath

// New returns the backend named by tool ("auto", "parted" or "builtin").
// Auto prefers parted and falls back to the in-process backend when parted
// is not installed.
func New(tool string) (Rewriter, error) {
	switch tool {
	case config.PartitionToolParted:
		return Parted{}, nil
	case config.PartitionToolBuiltin:
		return Builtin{}, nil
	case config.PartitionToolAuto, "":
		if _, err := lookPath("parted"); err == nil {
			return Parted{}, nil
		}
		utils.PrintDebug("parted not found, using the in-process partition backend")
		return Builtin{}, nil
	}
	return nil, fmt.Errorf("unknown partition tool %q", tool)
}
