package config

import "strings"

// envReplacer maps nested keys to environment names: compress.level -> IMGSHRINK_COMPRESS_LEVEL.
var envReplacer = strings.NewReplacer(".", "_")

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(envReplacer.Replace(key))
}
