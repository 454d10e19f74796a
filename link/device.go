package link

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// DevDir is where bare port names such as "ttyACM0" are looked up.
var DevDir = "/dev"

// ResolvePath turns a port name into a device path. Paths containing a
// separator are returned cleaned but otherwise unchanged.
func ResolvePath(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) || filepath.Base(name) != name {
		return filepath.Clean(name)
	}
	return filepath.Join(DevDir, name)
}

// CheckAccess reports whether the process can open path for reading and
// writing. It never attempts to change permissions.
func CheckAccess(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty device path", ErrDeviceNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
		}
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return fmt.Errorf("%w: stat %s: %v", ErrLink, path, err)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EROFS) {
			return fmt.Errorf("%w: %s needs read/write access", ErrPermissionDenied, path)
		}
		return fmt.Errorf("%w: access %s: %v", ErrLink, path, err)
	}
	return nil
}
