package buildinfo

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const name = "git-dig"

var readBuildInfo = debug.ReadBuildInfo

// Version returns the module version or "dev" when unset.
func Version() string {
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return "dev"
	}
	version := info.Main.Version
	if version == "" || version == "(devel)" {
		return "dev"
	}
	return version
}

// Tags returns the GOFLAGS build tags recorded at compile time.
func Tags() string {
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "-tags" {
			return setting.Value
		}
	}
	return ""
}

// Describe returns the text printed by --version. gitVersion is the output of
// git --version and is omitted when empty.
func Describe(gitVersion string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", name, Version())
	if tags := Tags(); tags != "" {
		fmt.Fprintf(&b, " (tags: %s)", tags)
	}
	if gitVersion = strings.TrimSpace(gitVersion); gitVersion != "" {
		fmt.Fprintf(&b, "\n%s", gitVersion)
	}
	return b.String()
}
