//go:build !windows

package monitor

import (
	"os"
	"syscall"
)

// getActualFileSize returns the blocks allocated to a file, in bytes.
func getActualFileSize(_ string, info os.FileInfo) (int64, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.Size(), nil
	}
	return stat.Blocks * 512, nil
}
