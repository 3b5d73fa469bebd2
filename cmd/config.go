package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imgshrink/imgshrink/internal/config"
	"github.com/imgshrink/imgshrink/internal/utils"
)

var (
	showPath     bool
	initPath     string
	initOverride bool
)

// configKeysCompletion returns config keys for shell completion
func configKeysCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		// First arg: complete config keys
		return config.Keys, cobra.ShellCompDirectiveNoFileComp
	}
	if len(args) == 1 {
		// Second arg: complete values based on the key
		return configValueCompletion(args[0]), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// configValueCompletion returns suggested values for a config key
func configValueCompletion(key string) []string {
	switch key {
	case "partition_tool":
		return []string{config.PartitionToolAuto, config.PartitionToolParted, config.PartitionToolBuiltin}
	case "zerofree", "verify", "update_check":
		return []string{"true", "false"}
	case "compress.level":
		return []string{"1", "6", "9"}
	case "compress.threads":
		return []string{"0", "2", "4", "8"}
	default:
		return nil
	}
}

// validateConfigValue checks value against the type of key.
func validateConfigValue(key, value string) error {
	switch key {
	case "partition_tool":
		if !config.IsValidPartitionTool(value) {
			return fmt.Errorf("partition_tool must be auto, parted or builtin")
		}
	case "zerofree", "verify", "update_check":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be true or false", key)
		}
	case "compress.level":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 9 {
			return fmt.Errorf("compress.level must be between 1 and 9")
		}
	case "compress.threads":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("compress.threads must be 0 (all cores) or more")
		}
	case "log_file":
		if value == "" {
			return fmt.Errorf("log_file must not be empty")
		}
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// getConfigEnvVars lists the environment variable for every config key.
func getConfigEnvVars() []string {
	vars := make([]string, 0, len(config.Keys))
	for _, key := range config.Keys {
		vars = append(vars, config.EnvName(key))
	}
	sort.Strings(vars)
	return vars
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage imgshrink configuration",
	Long: `Manage imgshrink configuration settings.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (IMGSHRINK_*)
  3. User config file (~/.config/imgshrink/config.yaml)
  4. Home config file (~/.imgshrink/config.yaml)
  5. System config file (/etc/imgshrink/config.yaml)
  6. Local config file (./config.yaml)
  7. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if showPath {
			configPath, err := config.GetUserConfigPath()
			if err != nil {
				ExitWithError("Failed to get config path: %v", err)
			}
			fmt.Println(configPath)
			return
		}

		fmt.Println(utils.StyleTitle("Config File Search Paths:"))
		foundActive := false
		for i, sp := range config.GetConfigSearchPaths() {
			status := ""
			if sp.InUse {
				status = " " + utils.StyleSuccess("← in use")
				foundActive = true
			} else if sp.Exists {
				status = " " + utils.StyleInfo("(exists)")
			}
			fmt.Printf("  %d. [%s] %s%s\n", i+1, sp.Type, sp.Path, status)
		}
		if !foundActive {
			fmt.Printf("  %s (use 'imgshrink config init' to create)\n", utils.StyleWarning("No config file found"))
		}
		fmt.Println()

		fmt.Println(utils.StyleTitle("Settings:"))
		for _, key := range config.Keys {
			source := ""
			if _, ok := os.LookupEnv(config.EnvName(key)); ok {
				source = " " + utils.StyleNote("(from "+config.EnvName(key)+")")
			}
			fmt.Printf("  %-18s %v%s\n", key, viper.Get(key), source)
		}
	},
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List config file locations and environment variables",
	Run: func(cmd *cobra.Command, args []string) {
		for _, sp := range config.GetConfigSearchPaths() {
			fmt.Printf("%-7s %s\n", sp.Type, sp.Path)
		}
		fmt.Println()
		for _, env := range getConfigEnvVars() {
			fmt.Println(env)
		}
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value.

Examples:
  imgshrink config get partition_tool
  imgshrink config get compress.level`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: configKeysCompletion,
	Run: func(cmd *cobra.Command, args []string) {
		value := viper.Get(args[0])
		if value == nil {
			ExitWithError("Unknown config key: %s", args[0])
		}
		fmt.Println(value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save it to the user config file.

Examples:
  imgshrink config set partition_tool builtin
  imgshrink config set compress.threads 4
  imgshrink config set update_check false`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: configKeysCompletion,
	Run: func(cmd *cobra.Command, args []string) {
		key, value := args[0], args[1]

		if err := validateConfigValue(key, value); err != nil {
			ExitWithError("%v", err)
		}

		viper.Set(key, value)
		if err := config.SaveConfig(); err != nil {
			ExitWithError("Failed to save config: %v", err)
		}

		configPath, _ := config.GetUserConfigPath()
		utils.PrintSuccess("Set %s = %s", utils.StyleInfo(key), utils.StyleInfo(value))
		utils.PrintNote("Config saved to: %s", configPath)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with defaults",
	Long: `Create a configuration file holding the current settings.

By default the file is written to ~/.config/imgshrink/config.yaml.
Use --path to write it elsewhere, e.g. /etc/imgshrink/config.yaml.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path := initPath
		if path == "" {
			p, err := config.GetUserConfigPath()
			if err != nil {
				ExitWithError("Failed to get config path: %v", err)
			}
			path = p
		}

		if utils.FileExists(path) && !initOverride {
			utils.PrintWarning("Config file already exists: %s", utils.StylePath(path))
			utils.PrintHint("Use --force to overwrite it.")
			os.Exit(ExitCodeError)
		}

		if err := config.SaveConfigAs(path); err != nil {
			ExitWithError("Failed to write config: %v", err)
		}
		utils.PrintSuccess("Config written to %s", utils.StylePath(path))
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&showPath, "path", false, "Show only the user config file path")
	configInitCmd.Flags().StringVarP(&initPath, "path", "p", "", "Write the config file to this path")
	configInitCmd.Flags().BoolVarP(&initOverride, "force", "f", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathsCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(configCmd)
}
