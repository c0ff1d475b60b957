package utils

import (
	"errors"
	"os"
	"path/filepath"
)

// ModuleRoot walks upward from startDir (the working directory when empty)
// and returns the first directory containing a go.mod file.
func ModuleRoot(startDir string) (string, error) {
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	startDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for dir := startDir; ; dir = filepath.Dir(dir) {
		if info, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !info.IsDir() {
			return dir, nil
		}
		if dir == filepath.Dir(dir) { // reached filesystem root
			break
		}
	}

	return "", errors.New("not inside a Go module")
}

// MigrationsDir resolves the goose migrations directory. A relative dir that
// does not exist from the working directory is looked up from the module root.
func MigrationsDir(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	if _, err := os.Stat(dir); err == nil {
		return dir
	}
	root, err := ModuleRoot("")
	if err != nil {
		return dir
	}
	return filepath.Join(root, dir)
}
