// Package version reports build information for rulepool.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	Version   string // Set via ldflags.
	Branch    string
	BuildUser string
	BuildDate string

	Revision  = getRevision()
	GoVersion = runtime.Version()
	GoOS      = runtime.GOOS
	GoArch    = runtime.GOARCH
)

// Info is the build information of the running binary.
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	Branch    string `json:"branch,omitempty"`
	BuildUser string `json:"buildUser,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetInfo returns the build information of the running binary.
func GetInfo() Info {
	return Info{
		Version:   GetVersion(),
		Revision:  Revision,
		Branch:    Branch,
		BuildUser: BuildUser,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
		Platform:  GoOS + "/" + GoArch,
	}
}

// String renders i as "rulepool <version>" followed by indented details.
func (i Info) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "rulepool %s\n", i.Version)
	fmt.Fprintf(&b, "  revision:   %s\n", i.Revision)

	if i.Branch != "" {
		fmt.Fprintf(&b, "  branch:     %s\n", i.Branch)
	}
	if i.BuildUser != "" {
		fmt.Fprintf(&b, "  build user: %s\n", i.BuildUser)
	}
	if i.BuildDate != "" {
		fmt.Fprintf(&b, "  build date: %s\n", i.BuildDate)
	}

	fmt.Fprintf(&b, "  go version: %s\n", i.GoVersion)
	fmt.Fprintf(&b, "  platform:   %s\n", i.Platform)

	return b.String()
}

func GetVersion() string {
	if Version != "" {
		return Version
	}

	return Revision
}

func getRevision() string {
	rev := "unknown"

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return rev
	}

	modified := false

	for _, v := range buildInfo.Settings {
		switch v.Key {
		case "vcs.revision":
			rev = v.Value[:min(len(v.Value), 7)]

		case "vcs.modified":
			modified = v.Value == "true"
		}
	}

	if modified {
		return rev + "-dirty"
	}

	return rev
}
