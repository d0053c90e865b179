package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// minimumFreeBytes is the free space floor below which a check fails;
// research workspaces accumulate sizable intermediate artifacts.
const minimumFreeBytes = 256 << 20

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem backing path has room to work with.
func CheckFreeSpace(name, path string) Result {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := uint64(fs.Bavail) * uint64(fs.Bsize)
	if free < minimumFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: only %d MiB free)", path, free>>20)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d MiB free)", path, free>>20)}
}

// CheckRecordStoreParent verifies the directory that will hold the record
// store file is usable, creating it if necessary.
func CheckRecordStoreParent(recordStorePath string) Result {
	const name = "Record store directory"
	dir := filepath.Dir(recordStorePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", dir, err)}
	}
	return CheckDirectoryAccess(name, dir)
}
