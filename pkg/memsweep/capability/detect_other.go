//go:build !windows

package capability

// detectVersion reports a zero version: none of the reclaim primitives
// exist outside Windows.
func detectVersion() OSVersion {
	return OSVersion{}
}
