package util

import (
	"os"
	"path/filepath"
	"sync"
)

var (
	dataDir     string
	dataDirOnce sync.Once
)

// GetDataDir returns the data directory path.
// WEARLINK_BLUE_DIR overrides the default ~/.wearlink-blue-data,
// which lets tests run against a throwaway directory.
func GetDataDir() string {
	if envDir := os.Getenv("WEARLINK_BLUE_DIR"); envDir != "" {
		return envDir
	}

	dataDirOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			dataDir = "data"
			return
		}
		dataDir = filepath.Join(home, ".wearlink-blue-data")
	})
	return dataDir
}

// GetDeviceDir returns the device-specific data directory
// Example: ~/.wearlink-blue-data/{deviceUUID}/
func GetDeviceDir(deviceUUID string) string {
	dir := filepath.Join(GetDataDir(), deviceUUID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return dir
	}
	return dir
}

// GetSocketDir returns the directory where Unix domain sockets are stored
func GetSocketDir() string {
	socketDir := filepath.Join(GetDataDir(), "sockets")
	// Ensure the directory exists
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		panic(err)
	}
	return socketDir
}

// GetBondStorePath returns the path of the bond store file for a device
func GetBondStorePath(deviceUUID string) string {
	return filepath.Join(GetDeviceDir(deviceUUID), "bonds.json")
}

// ShortHash safely returns up to the first 8 characters of a string
// (or the full string if shorter). Used in log prefixes.
func ShortHash(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
