package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ConfigFilename is the name of the config file
const ConfigFilename = "config"

// ConfigType is the type of config file (yaml, json, toml)
const ConfigType = "yaml"

// EnvPrefix is prepended to every environment override (IMGSHRINK_ZEROFREE, ...).
const EnvPrefix = "IMGSHRINK"

// Keys lists every known configuration key.
var Keys = []string{
	"partition_tool",
	"zerofree",
	"verify",
	"log_file",
	"update_check",
	"compress.level",
	"compress.threads",
}

// SearchPath describes one location viper looks for a config file.
type SearchPath struct {
	Type   string
	Path   string
	Exists bool
	InUse  bool
}

// InitViper initializes Viper with proper search paths and defaults
// Priority (highest to lowest):
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (IMGSHRINK_*)
// 3. User config file (~/.config/imgshrink/config.yaml)
// 4. System config file (/etc/imgshrink/config.yaml)
// 5. Defaults
func InitViper() error {
	viper.SetConfigName(ConfigFilename)
	viper.SetConfigType(ConfigType)

	for _, dir := range configDirs() {
		viper.AddConfigPath(dir)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(envReplacer)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// configDirs returns the viper search directories, highest priority first.
func configDirs() []string {
	var dirs []string
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(userConfigDir, "imgshrink"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".imgshrink"))
	}
	dirs = append(dirs, "/etc/imgshrink", ".")
	return dirs
}

// setDefaults sets default values for all config keys
func setDefaults() {
	viper.SetDefault("partition_tool", PartitionToolAuto)
	viper.SetDefault("zerofree", true)
	viper.SetDefault("verify", true)
	viper.SetDefault("log_file", "imgshrink.log")
	viper.SetDefault("update_check", true)
	viper.SetDefault("compress.level", 9)
	viper.SetDefault("compress.threads", 0)
}

// GetConfigSearchPaths reports each search location and whether it holds the active file.
func GetConfigSearchPaths() []SearchPath {
	used := viper.ConfigFileUsed()
	var out []SearchPath
	for i, dir := range configDirs() {
		p := filepath.Join(dir, ConfigFilename+"."+ConfigType)
		typ := "user"
		switch {
		case dir == "/etc/imgshrink":
			typ = "system"
		case dir == ".":
			typ = "local"
		case i == 1:
			typ = "home"
		}
		_, err := os.Stat(p)
		abs, _ := filepath.Abs(p)
		out = append(out, SearchPath{
			Type:   typ,
			Path:   p,
			Exists: err == nil,
			InUse:  used != "" && (used == p || used == abs),
		})
	}
	return out
}

// GetUserConfigPath returns the path to the user config file
func GetUserConfigPath() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".imgshrink", ConfigFilename+"."+ConfigType), nil
	}

	return filepath.Join(userConfigDir, "imgshrink", ConfigFilename+"."+ConfigType), nil
}

// SaveConfig saves current Viper config to user config file
func SaveConfig() error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return SaveConfigAs(configPath)
}

// SaveConfigAs writes the current Viper config to path, creating its directory.
func SaveConfigAs(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadFromViper loads config from Viper into Global struct
func LoadFromViper() {
	if tool := viper.GetString("partition_tool"); IsValidPartitionTool(tool) {
		Global.PartitionTool = tool
	}

	Global.ZeroFree = viper.GetBool("zerofree")
	Global.Verify = viper.GetBool("verify")
	Global.UpdateCheck = viper.GetBool("update_check")

	if logFile := viper.GetString("log_file"); logFile != "" {
		Global.LogFile = logFile
	}

	if level := viper.GetInt("compress.level"); level >= 1 && level <= 9 {
		Global.Compress.Level = level
	}

	if threads := viper.GetInt("compress.threads"); threads >= 0 {
		Global.Compress.Threads = threads
	}
}
