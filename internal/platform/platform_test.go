package platform

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func noEnv(string) string { return "" }

func readsFile(content string) func(string) ([]byte, error) {
	return func(string) ([]byte, error) { return []byte(content), nil }
}

func TestDetect(t *testing.T) {
	missing := func(string) ([]byte, error) { return nil, os.ErrNotExist }

	assert.Equal(t, PlatformMacOS, detect("darwin", noEnv, missing))
	assert.Equal(t, PlatformWindows, detect("windows", noEnv, missing))
	assert.Equal(t, PlatformUnknown, detect("plan9", noEnv, missing))
	assert.Equal(t, PlatformLinux, detect("linux", noEnv, missing))
	assert.Equal(t, PlatformLinux, detect("linux", noEnv, readsFile("Linux version 6.8.0-generic")))
	assert.Equal(t, PlatformWSL, detect("linux", noEnv, readsFile("Linux version 5.15.90.1-microsoft-standard-WSL2")))
	assert.Equal(t, PlatformWSL, detect("linux", func(k string) string {
		if k == "WSL_DISTRO_NAME" {
			return "Ubuntu"
		}
		return ""
	}, func(string) ([]byte, error) { return nil, errors.New("denied") }))
}

func TestDetectIsCached(t *testing.T) {
	assert.Equal(t, Detect(), Detect())
}

const mounts = `/dev/sda1 / ext4 rw 0 0
C:\134 /mnt/c 9p rw 0 0
server:/export /srv/nfs nfs4 rw 0 0
user@host:/ /mnt/remote fuse.sshfs rw 0 0
//nas/share /mnt/share cifs rw 0 0
tmpfs /mnt/cache tmpfs rw 0 0
`

func TestWatchCaveat(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/home/me/.claude/projects", ""},
		{"/mnt/c/Users/me/.claude/projects", "9p"},
		{"/srv/nfs/deck", "NFS"},
		{"/mnt/remote/x", "SSHFS"},
		{"/mnt/share/x", "SMB"},
		{"/mnt/cache/x", ""},
		// prefix of a mount point without a separator is not under it
		{"/mnt/cx/projects", ""},
	}
	for _, tt := range tests {
		got := watchCaveat(tt.path, mounts)
		if tt.want == "" {
			assert.Empty(t, got, tt.path)
		} else {
			assert.Contains(t, got, tt.want, tt.path)
		}
	}
}
