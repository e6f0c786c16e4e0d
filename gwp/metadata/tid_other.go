//go:build !linux && !windows

package metadata

// threadID has no portable source here; traces carry 0.
func threadID() uint64 {
	return 0
}
