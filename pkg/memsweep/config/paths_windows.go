//go:build windows

package config

const binaryExt = ".exe"

// PipePrefix is the namespace of local named pipes.
const PipePrefix = `\\.\pipe\`

func defaultSocketPath() string {
	return PipePrefix + AppName
}
