package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imgshrink/imgshrink/internal/shrink"
	"github.com/imgshrink/imgshrink/internal/utils"
)

var infoCmd = &cobra.Command{
	Use:   "info imagefile.img",
	Short: "Show what a shrink would do without changing the image",
	Long: `Attach the image, read its filesystem and print the shrink plan.

Shows the partition that would be shrunk, filesystem usage, the minimum size
reported by resize2fs and the image size after shrinking. Nothing is written.`,
	Example: `  sudo imgshrink info raspios.img`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: imageArgsCompletion,
	SilenceUsage:      true, // Runtime errors should not show usage
	RunE:              runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	image := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := shrink.CheckPrivilege(); err != nil {
		return err
	}
	rw, err := newPartitionBackend()
	if err != nil {
		return err
	}
	if err := shrink.CheckTools(requiredTools(rw), nil); err != nil {
		return err
	}

	rep, err := shrink.New(rw).Inspect(ctx, image)
	if err != nil {
		return err
	}

	writeReport(os.Stdout, rep)
	if rep.Plan.NoOp() {
		utils.PrintNote("Filesystem is already at its minimum size.")
	}
	return nil
}

// writeReport prints what a shrink of rep.Image would do.
func writeReport(w io.Writer, rep *shrink.Report) {
	used, percent := rep.Stats.Usage()
	plan := rep.Plan

	fmt.Fprintf(w, "Information for %s:\n", utils.StyleName(rep.Image))
	fmt.Fprintf(w, "  Image size:      %s\n", utils.FormatBytes(rep.ImageSize))
	fmt.Fprintf(w, "  Partition:       #%d at byte %d (%s)\n", rep.Device.Index, rep.Device.Start, rep.Device.PartitionPath)
	if rep.Stats.VolumeName != "" {
		fmt.Fprintf(w, "  Volume name:     %s\n", rep.Stats.VolumeName)
	}
	fmt.Fprintf(w, "  Filesystem:      %s, %s\n", rep.Stats.Type(), rep.Stats.FilesystemState)
	if len(rep.Stats.Features) > 0 {
		fmt.Fprintf(w, "  Features:        %s\n", strings.Join(rep.Stats.Features, " "))
	}
	fmt.Fprintf(w, "  Block size:      %d\n", plan.BlockSize)
	fmt.Fprintf(w, "  Blocks:          %d (%s)\n", plan.Current, utils.FormatBytes(rep.Stats.SizeBytes()))
	fmt.Fprintf(w, "  Used:            %s (%.1f%%)\n", utils.FormatBytes(used), percent)
	fmt.Fprintf(w, "  Minimum blocks:  %d\n", plan.Minimum)

	if plan.NoOp() {
		return
	}
	fmt.Fprintf(w, "  Target blocks:   %d (%s, %d slack)\n", plan.Target, utils.FormatBytes(plan.TargetBytes()), plan.Slack)
	fmt.Fprintf(w, "  Filesystem gain: %s\n", utils.FormatBytes(plan.SavedBytes()))
	fmt.Fprintf(w, "  New partition:   [%d, %d)\n", rep.Spec.Start, rep.Spec.End)
	fmt.Fprintf(w, "  New image size:  %s (saves %s)\n",
		utils.StyleNumber(utils.FormatBytes(rep.NewImageSize())),
		utils.StyleNumber(utils.FormatBytes(rep.ImageSize-rep.NewImageSize())))
}
