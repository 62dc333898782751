package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrInvalidPID is returned when a PID file does not hold a positive integer
var ErrInvalidPID = errors.New("invalid PID file")

// WritePID records pid at path, replacing the file atomically
func WritePID(path string, pid int) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadPID returns the PID stored at path. A missing file keeps the
// os.IsNotExist error.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPID, path)
	}
	return pid, nil
}

// RemovePID deletes the PID file. A missing file is not an error.
func RemovePID(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsProcessRunning reports whether pid is alive
func IsProcessRunning(pid int) bool {
	if pid <= 0 || pid > 1<<22 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// CheckExistingDaemon reports whether the PID file belongs to a live
// process. Stale or corrupt files are removed.
func CheckExistingDaemon(pidFile string) (bool, int, error) {
	pid, err := ReadPID(pidFile)
	switch {
	case os.IsNotExist(err):
		return false, 0, nil
	case errors.Is(err, ErrInvalidPID):
		return false, 0, RemovePID(pidFile)
	case err != nil:
		return false, 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	if IsProcessRunning(pid) {
		return true, pid, nil
	}
	return false, 0, RemovePID(pidFile)
}
