//go:build !unix

package state

// diskFree is unavailable on this platform; the snapshot reports zero.
func diskFree(string) (uint64, error) {
	return 0, nil
}
