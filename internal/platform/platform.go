// Package platform answers the few host questions orca cares about: whether
// it runs under WSL and whether a directory can be watched reliably.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform is the detected host kind.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL     Platform = "wsl"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the current platform. The result is cached.
func Detect() Platform {
	detectOnce.Do(func() {
		detected = detect(runtime.GOOS, os.Getenv, os.ReadFile)
	})
	return detected
}

// IsWSL reports whether orca runs inside WSL.
func IsWSL() bool {
	return Detect() == PlatformWSL
}

func detect(goos string, getenv func(string) string, readFile func(string) ([]byte, error)) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
	default:
		return PlatformUnknown
	}
	if getenv("WSL_DISTRO_NAME") != "" {
		return PlatformWSL
	}
	if b, err := readFile("/proc/version"); err == nil && strings.Contains(strings.ToLower(string(b)), "microsoft") {
		return PlatformWSL
	}
	return PlatformLinux
}

// WatchCaveat returns a warning when path lives on a filesystem where
// fsnotify events are missing or unreliable (9p, NFS, SMB, SSHFS), or ""
// when watching should work. Only Linux is checked.
func WatchCaveat(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	return watchCaveat(abs, string(mounts))
}

func watchCaveat(abs, mounts string) string {
	var mountPoint, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mp := fields[1]
		if !underMount(abs, mp) || len(mp) <= len(mountPoint) {
			continue
		}
		mountPoint, fsType = mp, fields[2]
	}

	switch {
	case fsType == "9p":
		return "9p mount (WSL Windows filesystem): file events are not delivered"
	case fsType == "nfs" || fsType == "nfs4":
		return "NFS mount: file events may be missed"
	case fsType == "cifs" || fsType == "smbfs":
		return "SMB mount: file events may be missed"
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "SSHFS mount: file events are not delivered"
	}
	return ""
}

func underMount(path, mountPoint string) bool {
	if mountPoint == "/" {
		return true
	}
	return path == mountPoint || strings.HasPrefix(path, mountPoint+"/")
}
