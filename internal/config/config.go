package config

const VERSION = "0.4.2"

// GITHUB_REPO is queried for the latest release by the update check.
const GITHUB_REPO = "imgshrink/imgshrink"

// Partition tool selections.
const (
	PartitionToolAuto    = "auto"
	PartitionToolParted  = "parted"
	PartitionToolBuiltin = "builtin"
)

// CompressConfig holds compression tuning.
type CompressConfig struct {
	Level   int // gzip level 1-9
	Threads int // parallel gzip workers, 0 = NumCPU
}

// Config holds global application settings
type Config struct {
	Debug   bool
	Version string

	PartitionTool string // auto, parted, builtin
	ZeroFree      bool   // best-effort zero-fill after resize
	Verify        bool   // read-only fsck after the image is reattached
	LogFile       string // -d mirror target
	UpdateCheck   bool

	Compress CompressConfig
}

// Global holds the singleton configuration instance
var Global Config

// LoadDefaults resets Global to built-in defaults.
func LoadDefaults() {
	Global = Config{
		Debug:         false,
		Version:       VERSION,
		PartitionTool: PartitionToolAuto,
		ZeroFree:      true,
		Verify:        true,
		LogFile:       "imgshrink.log",
		UpdateCheck:   true,
		Compress: CompressConfig{
			Level:   9,
			Threads: 0,
		},
	}
}

// IsValidPartitionTool reports whether name is an accepted partition_tool value.
func IsValidPartitionTool(name string) bool {
	switch name {
	case PartitionToolAuto, PartitionToolParted, PartitionToolBuiltin:
		return true
	}
	return false
}
