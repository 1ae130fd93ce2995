// Package version exposes build information. Values are set with ldflags:
//
//	go build -ldflags "-X github.com/ramonehamilton/CHUNI-Companion/internal/version.Version=v1.2.3 -X github.com/ramonehamilton/CHUNI-Companion/internal/version.Commit=abc123"
package version

import "runtime"

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// Commit is the git revision the binary was built from.
	Commit = "unknown"
	// BuildDate is an RFC 3339 timestamp.
	BuildDate = ""
)

// Info is the build information served by the API.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate,omitempty"`
	GoVersion string `json:"goVersion"`
}

// GetVersion returns the current application version.
func GetVersion() string {
	return Version
}

// Get returns the full build information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}
