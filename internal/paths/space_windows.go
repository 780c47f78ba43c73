//go:build windows

package paths

import "golang.org/x/sys/windows"

// availableSpace returns the bytes available to the current user on the
// volume holding dir.
func availableSpace(dir string) (uint64, error) {
	var free, total, totalFree uint64
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}
