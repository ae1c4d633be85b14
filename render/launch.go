package render

import (
	"fmt"
	"strings"
)

// Browser command-line flags managed by LaunchConfig.
const (
	FlagDisableInfobars = "--disable-infobars"
	FlagStartMaximized  = "--start-maximized"
	FlagWindowSize      = "--window-size"
)

// LaunchConfig describes how the browser process is started.
//
// Pointer fields distinguish "unset" from an explicit false; unset fields take
// the defaults documented on each field.
type LaunchConfig struct {
	// Headless runs the browser without a window. Default: true.
	// When true, AutoClose is forced to true.
	Headless *bool

	// ExecutablePath overrides the Chromium/Chrome binary.
	ExecutablePath string

	// UserDataDir is the browser profile directory. Empty means a temporary
	// profile that is removed after the browser exits.
	UserDataDir string

	// AutoClose ties the browser process lifetime to this process. Default: true.
	AutoClose *bool

	// WindowWidth and WindowHeight set the window size in pixels. Both must be
	// positive, otherwise both are ignored.
	WindowWidth  int
	WindowHeight int

	// Args are extra browser flags, in order.
	Args []string

	// EnableMaximize starts the window maximized unless a window size is given.
	// Default: true.
	EnableMaximize *bool
}

// LaunchSpec is the normalized form of a LaunchConfig: every default resolved
// and the final argument list computed.
type LaunchSpec struct {
	Headless       bool
	ExecutablePath string
	UserDataDir    string
	AutoClose      bool
	Args           []string
}

// Spec resolves defaults and builds the final argument list.
//
//   - headless forces auto-close on;
//   - the disable-infobars flag is always present exactly once;
//   - with both window dimensions set, a single --window-size flag is used and
//     every maximize flag is removed;
//   - otherwise, when maximize is enabled, a single --start-maximized flag is used.
//
// The caller's Args slice is never modified.
func (c LaunchConfig) Spec() LaunchSpec {
	headless := boolOr(c.Headless, true)
	autoClose := boolOr(c.AutoClose, true)
	if headless {
		autoClose = true
	}

	args := make([]string, 0, len(c.Args)+2)
	args = append(args, c.Args...)
	args = setFlag(args, FlagDisableInfobars)

	if boolOr(c.EnableMaximize, true) {
		args = setFlag(args, FlagStartMaximized)
	}
	if c.WindowWidth > 0 && c.WindowHeight > 0 {
		args = removeFlag(args, FlagWindowSize)
		args = append(args, fmt.Sprintf("%s=%d,%d", FlagWindowSize, c.WindowWidth, c.WindowHeight))
		args = removeFlag(args, FlagStartMaximized)
	}

	return LaunchSpec{
		Headless:       headless,
		ExecutablePath: c.ExecutablePath,
		UserDataDir:    c.UserDataDir,
		AutoClose:      autoClose,
		Args:           args,
	}
}

// splitFlag turns "--name=value" into ("name", "value") and "--name" into
// ("name", "").
func splitFlag(arg string) (name, value string) {
	arg = strings.TrimLeft(arg, "-")
	name, value, _ = strings.Cut(arg, "=")
	return name, value
}

// flagName returns the bare flag name of arg.
func flagName(arg string) string {
	name, _ := splitFlag(arg)
	return name
}

// setFlag drops every existing occurrence of flag and appends it once.
func setFlag(args []string, flag string) []string {
	return append(removeFlag(args, flag), flag)
}

func removeFlag(args []string, flag string) []string {
	want := flagName(flag)
	out := args[:0]
	for _, a := range args {
		if flagName(a) != want {
			out = append(out, a)
		}
	}
	return out
}

func boolOr(p *bool, fallback bool) bool {
	if p == nil {
		return fallback
	}
	return *p
}

// Bool returns a pointer to b, for the optional fields of LaunchConfig and
// RequestOptions.
func Bool(b bool) *bool {
	return &b
}
