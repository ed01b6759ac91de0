//go:build windows

package quadapk

func checkDiskSpace(dir string) {}
