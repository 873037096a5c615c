package main

import (
	"os"
	"path/filepath"
	"strings"
)

const envOutDir = "GOLDMEM_OUT_DIR"

// resolveOutDir picks the output directory: the flag, then $GOLDMEM_OUT_DIR,
// then ./out. The directory is created if needed.
func resolveOutDir(flag string) (string, error) {
	dir := strings.TrimSpace(flag)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envOutDir))
	}
	if dir == "" {
		dir = filepath.Join(".", "out")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
