// Package clipboard copies short strings (session ids, attach commands)
// from the dashboard to the user's clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	atotto "github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"

	"github.com/orcadeck/orca/internal/platform"
)

// Method names reported by Copy.
const (
	MethodNative  = "native"
	MethodClipExe = "clip.exe"
	MethodOSC52   = "osc52"
)

var errEmpty = errors.New("no content to copy")

// copier holds the backends so tests can replace them.
type copier struct {
	wsl     bool
	inTmux  bool
	native  func(string) error
	clipExe func(string) error
	tty     func() (io.WriteCloser, error)
}

func defaultCopier() copier {
	return copier{
		wsl:     platform.IsWSL(),
		inTmux:  os.Getenv("TMUX") != "",
		native:  atotto.WriteAll,
		clipExe: runClipExe,
		tty: func() (io.WriteCloser, error) {
			return os.OpenFile("/dev/tty", os.O_WRONLY, 0)
		},
	}
}

// Copy puts text on the clipboard and returns the method that worked.
// Order: clip.exe under WSL, the native tool, then an OSC 52 escape
// written to the controlling terminal.
func Copy(text string) (string, error) {
	return defaultCopier().copy(text)
}

func (c copier) copy(text string) (string, error) {
	if text == "" {
		return "", errEmpty
	}
	if c.wsl {
		if err := c.clipExe(text); err == nil {
			return MethodClipExe, nil
		}
	}
	nativeErr := errors.New("no native clipboard")
	if !atotto.Unsupported {
		if nativeErr = c.native(text); nativeErr == nil {
			return MethodNative, nil
		}
	}
	if err := c.osc52(text); err != nil {
		return "", fmt.Errorf("clipboard unavailable: %v; osc52: %w", nativeErr, err)
	}
	return MethodOSC52, nil
}

func (c copier) osc52(text string) error {
	tty, err := c.tty()
	if err != nil {
		return err
	}
	defer tty.Close()
	seq := osc52.New(text)
	if c.inTmux {
		seq = seq.Tmux()
	}
	_, err = seq.WriteTo(tty)
	return err
}

func runClipExe(text string) error {
	cmd := exec.Command("clip.exe")
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
