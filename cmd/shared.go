package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/imgshrink/imgshrink/internal/config"
	"github.com/imgshrink/imgshrink/internal/device"
	"github.com/imgshrink/imgshrink/internal/e2fs"
	"github.com/imgshrink/imgshrink/internal/partition"
	"github.com/imgshrink/imgshrink/internal/shrink"
	"github.com/imgshrink/imgshrink/internal/utils"
)

// ShrinkFlags holds the flags of the root shrink command
type ShrinkFlags struct {
	SkipAutoexpand bool
	Repair         bool
	Gzip           bool
	XZ             bool
	Parallel       bool
}

var shrinkFlags ShrinkFlags

// registerShrinkFlags registers the shrink and compression flags
func registerShrinkFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&shrinkFlags.SkipAutoexpand, "skip-autoexpand", "s", false, "Do not expand the filesystem on first boot")
	fs.BoolVarP(&shrinkFlags.Repair, "repair", "r", false, "Allow a destructive filesystem repair if the check fails")
	fs.BoolVarP(&shrinkFlags.Gzip, "gzip", "z", false, "Compress the image with gzip after shrinking")
	fs.BoolVarP(&shrinkFlags.XZ, "xz", "Z", false, "Compress the image with xz after shrinking")
	fs.BoolVarP(&shrinkFlags.Parallel, "parallel", "a", false, "Use all cores for gzip (with -z)")
}

// Exit codes used by commands outside the shrink pipeline
const (
	// Generic error code
	ExitCodeError = shrink.ExitGeneric
)

// ExitWithError prints an error and exits with ExitCodeError
func ExitWithError(format string, a ...interface{}) {
	utils.PrintError(format, a...)
	os.Exit(ExitCodeError)
}

// imageArgsCompletion completes disk image files
func imageArgsCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) >= 2 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{"img", "raw"}, cobra.ShellCompDirectiveFilterFileExt
}

// newPartitionBackend resolves the configured partition backend.
func newPartitionBackend() (partition.Rewriter, error) {
	rw, err := partition.New(config.Global.PartitionTool)
	if err != nil {
		return nil, &shrink.StageError{Stage: "select partition tool", Kind: shrink.Precondition, Code: shrink.ExitGeneric, Err: err}
	}
	return rw, nil
}

// requiredTools lists the external commands a run needs with backend rw.
func requiredTools(rw partition.Rewriter) []string {
	tools := append([]string{}, e2fs.RequiredTools...)
	tools = append(tools, device.Tools()...)
	if _, ok := rw.(partition.Parted); ok {
		tools = append(tools, "parted")
	}
	return tools
}

// optionalTools lists commands whose absence only disables a feature.
func optionalTools(autoexpand bool) []string {
	var tools []string
	if config.Global.ZeroFree {
		tools = append(tools, "zerofree")
	}
	if autoexpand {
		tools = append(tools, "debugfs")
	}
	return tools
}

// printSummary reports what a finished run did.
func printSummary(res *shrink.Result) {
	if res.Plan.NoOp() {
		utils.PrintSuccess("%s was already minimal (%s).", utils.StylePath(res.Image), utils.StyleNumber(utils.FormatBytes(res.NewSize)))
	} else {
		saved := res.OldSize - res.NewSize
		utils.PrintSuccess("Shrunk %s from %s to %s (saved %s).",
			utils.StylePath(res.Image),
			utils.StyleNumber(utils.FormatBytes(res.OldSize)),
			utils.StyleNumber(utils.FormatBytes(res.NewSize)),
			utils.StyleNumber(utils.FormatBytes(saved)))
	}
	if res.Output != res.Image {
		fmt.Printf("  Output: %s\n", utils.StylePath(res.Output))
	}
}
