package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imgshrink/imgshrink/internal/compress"
	"github.com/imgshrink/imgshrink/internal/config"
	"github.com/imgshrink/imgshrink/internal/shrink"
	"github.com/imgshrink/imgshrink/internal/utils"
)

func runShrink(cmd *cobra.Command, args []string) error {
	strategy, err := compress.Select(shrinkFlags.Gzip, shrinkFlags.XZ, shrinkFlags.Parallel)
	if err != nil {
		return &shrink.StageError{Stage: "parse flags", Kind: shrink.Precondition, Code: shrink.ExitGeneric, Err: err}
	}

	image := args[0]
	if !utils.FileExists(image) {
		return &shrink.StageError{Stage: "open image", Kind: shrink.Precondition, Code: shrink.ExitImageMissing,
			Err: errors.New(image + " does not exist or is not a file")}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.Global.UpdateCheck {
		checkForUpdate(ctx)
	}

	if err := shrink.CheckPrivilege(); err != nil {
		return err
	}

	rw, err := newPartitionBackend()
	if err != nil {
		return err
	}
	autoexpand := !shrinkFlags.SkipAutoexpand
	if err := shrink.CheckTools(requiredTools(rw), optionalTools(autoexpand)); err != nil {
		return err
	}

	if len(args) == 2 {
		if err := shrink.CopyImage(ctx, image, args[1]); err != nil {
			return err
		}
		image = args[1]
	}

	res, err := shrink.New(rw).Run(ctx, shrink.Options{
		Image:      image,
		Repair:     shrinkFlags.Repair,
		Autoexpand: autoexpand,
		ZeroFree:   config.Global.ZeroFree,
		Verify:     config.Global.Verify,
		Strategy:   strategy,
		Compress: compress.Options{
			Level:   config.Global.Compress.Level,
			Threads: config.Global.Compress.Threads,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			utils.PrintWarning("Interrupted. The image may be left partially shrunk.")
		}
		return err
	}

	printSummary(res)
	return nil
}
