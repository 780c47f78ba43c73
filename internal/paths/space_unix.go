//go:build !windows

package paths

import "golang.org/x/sys/unix"

// availableSpace returns the bytes available to the current user on the
// volume holding dir.
func availableSpace(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
