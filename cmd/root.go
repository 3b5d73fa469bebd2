package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/imgshrink/imgshrink/internal/config"
	"github.com/imgshrink/imgshrink/internal/shrink"
	"github.com/imgshrink/imgshrink/internal/utils"
)

var (
	verbose       bool
	quiet         bool
	logToFile     bool
	noUpdateCheck bool
	partitionTool string
	noVerify      bool
	noZeroFree    bool
)

var rootCmd = &cobra.Command{
	Use:   "imgshrink [flags] imagefile.img [newimagefile.img]",
	Short: "imgshrink: shrink ext2/3/4 disk images to their smallest size",
	Long: `Shrink a disk image whose last partition holds an ext2/3/4 filesystem.

The filesystem is checked, shrunk to its minimum size plus a little slack,
the partition is rewritten to match and the image file is truncated. On the
next boot the filesystem grows back to fill the card (disable with -s).

If newimagefile.img is given, imagefile.img is copied there first and the
copy is shrunk.`,
	Example: `  sudo imgshrink raspios.img               # Shrink in place
  sudo imgshrink raspios.img small.img     # Shrink a copy
  sudo imgshrink -z -a raspios.img         # Shrink, then gzip with all cores
  sudo imgshrink -Z -s -r raspios.img      # Repair if needed, no autoexpand, xz`,
	Version:           config.VERSION,
	Args:              cobra.RangeArgs(1, 2),
	ValidArgsFunction: imageArgsCompletion,
	SilenceErrors:     true,
	SilenceUsage:      true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Step 1: Load defaults
		config.LoadDefaults()

		// Step 2: Initialize Viper (read config file, env vars)
		if err := config.InitViper(); err != nil {
			utils.PrintWarning("Ignoring config file: %v", err)
		}

		// Step 3: Load values from Viper into Global config
		config.LoadFromViper()

		// Step 4: Apply command-line flags (highest priority)
		applyFlagOverrides(cmd.Flags())

		if logToFile {
			if err := utils.SetLogFile(config.Global.LogFile); err != nil {
				utils.PrintWarning("%v", err)
			} else {
				utils.PrintDebug("Mirroring output to %s", utils.StylePath(config.Global.LogFile))
			}
		}

		if config.Global.Debug {
			utils.PrintDebug("imgshrink version: %s", utils.StyleInfo(config.VERSION))
			utils.PrintDebug("Partition tool: %s", config.Global.PartitionTool)
			utils.PrintDebug("Compression: level %d, threads %d", config.Global.Compress.Level, config.Global.Compress.Threads)
		}
	},
	RunE: runShrink,
}

// applyFlagOverrides copies flags the user set onto config.Global.
func applyFlagOverrides(flags *pflag.FlagSet) {
	if verbose {
		utils.DebugMode = true
		config.Global.Debug = true
	}
	if quiet {
		utils.QuietMode = true
	}
	if noUpdateCheck {
		config.Global.UpdateCheck = false
	}
	if flags.Changed("partition-tool") {
		if config.IsValidPartitionTool(partitionTool) {
			config.Global.PartitionTool = partitionTool
		} else {
			utils.PrintWarning("Unknown partition tool %q, using %s", partitionTool, config.Global.PartitionTool)
		}
	}
	if flags.Changed("no-verify") && noVerify {
		config.Global.Verify = false
	}
	if flags.Changed("no-zerofree") && noZeroFree {
		config.Global.ZeroFree = false
	}
}

// Execute runs the root command and exits with the code mapped from its error.
func Execute() {
	err := rootCmd.Execute()
	utils.CloseLogFile()
	if err != nil {
		utils.PrintError("%v", err)
		os.Exit(shrink.ExitCode(err))
	}
}

func init() {
	// Subcommands are attached to rootCmd in their respective init() functions
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print warnings and errors")
	rootCmd.PersistentFlags().BoolVarP(&logToFile, "log", "d", false, "Mirror all output to the log file (log_file, default imgshrink.log)")
	rootCmd.PersistentFlags().BoolVarP(&noUpdateCheck, "no-update-check", "n", false, "Do not check for a newer release")
	rootCmd.PersistentFlags().StringVar(&partitionTool, "partition-tool", config.PartitionToolAuto, "Partition backend: auto, parted or builtin")

	registerShrinkFlags(rootCmd.Flags())
	rootCmd.Flags().BoolVar(&noVerify, "no-verify", false, "Skip the read-only filesystem check after shrinking")
	rootCmd.Flags().BoolVar(&noZeroFree, "no-zerofree", false, "Skip zeroing free blocks after shrinking")
}
