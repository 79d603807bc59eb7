package config

import (
	"os"
	"path/filepath"
	"strings"
)

const envConfigDir = "HARKIT_CONFIG_DIR"

// Dir is $HARKIT_CONFIG_DIR, or harkit under the user config directory. It
// falls back to .harkit in the working directory when neither is available.
func Dir() string {
	if dir := strings.TrimSpace(os.Getenv(envConfigDir)); dir != "" {
		return dir
	}
	if base, err := os.UserConfigDir(); err == nil && base != "" {
		return filepath.Join(base, "harkit")
	}
	return ".harkit"
}
