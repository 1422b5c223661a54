package main

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
)

// mapPath expands environment variables and a leading ~/ in paths taken from
// parameters or the config file.
func mapPath(path string) string {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		curUser, err := user.Current()
		if err != nil {
			return path
		}
		return filepath.Join(curUser.HomeDir, strings.TrimPrefix(path, "~/"))
	}
	return path
}

func parallelism(workers int) int {
	if workers > 0 {
		return workers
	}
	return max(1, runtime.NumCPU())
}
