package monitor

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultUsageCacheTTL is how long a directory scan result is reused.
const DefaultUsageCacheTTL = 10 * time.Second

// StorageMonitor reports disk usage of the sample store against its limit.
// Scans are cached since walking a badger directory is not free.
type StorageMonitor struct {
	dataDir  string
	maxBytes int64
	ttl      time.Duration

	mu          sync.Mutex
	cachedUsage int64
	lastCheck   time.Time
}

// NewStorageMonitor creates a monitor for dataDir. maxBytes <= 0 disables the limit.
func NewStorageMonitor(dataDir string, maxBytes int64) *StorageMonitor {
	return &StorageMonitor{
		dataDir:  dataDir,
		maxBytes: maxBytes,
		ttl:      DefaultUsageCacheTTL,
	}
}

// GetUsage returns bytes used on disk, refreshed at most once per TTL.
func (sm *StorageMonitor) GetUsage() (int64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.lastCheck.IsZero() && time.Since(sm.lastCheck) < sm.ttl {
		return sm.cachedUsage, nil
	}

	usage, err := dirUsage(sm.dataDir)
	if err != nil {
		return 0, err
	}
	sm.cachedUsage = usage
	sm.lastCheck = time.Now()
	return usage, nil
}

// GetLimit returns the configured storage limit in bytes.
func (sm *StorageMonitor) GetLimit() int64 {
	return sm.maxBytes
}

// Usage is the storage part of the API.
type Usage struct {
	DataDir     string  `json:"data_dir"`
	UsedBytes   int64   `json:"used_bytes"`
	MaxBytes    int64   `json:"max_bytes"`
	UsedPercent float64 `json:"used_percent"`
	Full        bool    `json:"full"`
}

// Usage returns current usage with the derived percentage.
func (sm *StorageMonitor) Usage() (Usage, error) {
	used, err := sm.GetUsage()
	if err != nil {
		return Usage{}, err
	}
	u := Usage{DataDir: sm.dataDir, UsedBytes: used, MaxBytes: sm.maxBytes}
	if sm.maxBytes > 0 {
		u.UsedPercent = float64(used) / float64(sm.maxBytes) * 100
		u.Full = used >= sm.maxBytes
	}
	return u, nil
}

// dirUsage sums allocated blocks, not logical sizes, so sparse files count
// for what they occupy.
func dirUsage(root string) (int64, error) {
	var size int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if actual, err := getActualFileSize(path, info); err == nil {
			size += actual
		} else {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
