package config

import (
	"os"
	"path/filepath"
	"strings"
)

// resolvePath makes raw absolute. Relative paths are taken against base,
// or the working directory when base is empty.
func resolvePath(base, raw, fallback string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		target = fallback
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return filepath.Clean(target)
		}
		base = wd
	}
	return filepath.Join(base, target)
}
