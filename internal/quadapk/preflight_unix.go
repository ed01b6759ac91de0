//go:build !windows

package quadapk

import "golang.org/x/sys/unix"

// lowDiskBytes is the free-space threshold below which a build warns.
const lowDiskBytes = 1 << 30

// checkDiskSpace warns when the build volume runs low. Per-architecture
// object trees plus the packaging work dirs can need a few hundred
// megabytes each.
func checkDiskSpace(dir string) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return
	}
	free := uint64(st.Bavail) * uint64(st.Bsize)
	if free < lowDiskBytes {
		warnf("Low disk space on %s: %d MiB free\n", dir, free/(1<<20))
	}
}
