package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ExpandPath expands a leading ~ to the home directory and $VAR references
// to their environment values.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return os.ExpandEnv(path)
}

// resolveFrom expands path and anchors a relative result at dir. An empty
// dir leaves it relative to the working directory.
func resolveFrom(dir, path string) string {
	path = ExpandPath(path)
	if path == "" || dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// configDir returns the directory of the config file v read, if any.
func configDir(v *viper.Viper) string {
	file := v.ConfigFileUsed()
	if file == "" {
		return ""
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return filepath.Dir(file)
	}
	return filepath.Dir(abs)
}
