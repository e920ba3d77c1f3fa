//go:build windows

package capability

import (
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// detectVersion uses RtlGetVersion, which reports the real kernel version
// regardless of the executable's compatibility manifest.
func detectVersion() OSVersion {
	info := windows.RtlGetVersion()
	return OSVersion{
		Major:   info.MajorVersion,
		Minor:   info.MinorVersion,
		Build:   info.BuildNumber,
		Edition: edition(),
	}
}

// edition reads the marketing name and release from the registry.
// Failures leave the edition empty.
func edition() string {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Windows NT\CurrentVersion`, registry.QUERY_VALUE)
	if err != nil {
		return ""
	}
	defer key.Close()

	name, _, err := key.GetStringValue("ProductName")
	if err != nil {
		return ""
	}
	release, _, err := key.GetStringValue("DisplayVersion")
	if err != nil || release == "" {
		release, _, err = key.GetStringValue("ReleaseId")
		if err != nil {
			return name
		}
	}
	return name + " " + release
}
