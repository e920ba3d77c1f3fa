//go:build !windows

package config

import "path/filepath"

const binaryExt = ""

func defaultSocketPath() string {
	return filepath.Join(DataDir(), AppName+".sock")
}
