package version

import (
	"fmt"
	"runtime/debug"
)

// Name identifies the binaries in MCP handshakes and log lines.
const Name = "mcpconc"

var version = "dev"

// Version returns the build string embedded via -ldflags when available.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
		return info.Main.Version
	}
	return version
}

// Set assigns the exported version when ldflags are not provided (e.g. local dev).
func Set(v string) {
	if v != "" {
		version = v
	}
}

// Revision returns the short VCS revision stamped by the toolchain, if any.
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}

// String formats the name, version and revision for -version output.
func String() string {
	if rev := Revision(); rev != "" {
		return fmt.Sprintf("%s %s (%s)", Name, Version(), rev)
	}
	return fmt.Sprintf("%s %s", Name, Version())
}
