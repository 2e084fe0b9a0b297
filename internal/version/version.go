// Package version contains build version information set via ldflags.
package version

var (
	// Version is the release version.
	Version = "0.0.0"
	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Info is the build information reported by the version endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, Commit: GitCommit, BuildDate: BuildDate}
}

// UserAgent identifies outbound HTTP requests made by the service.
func UserAgent() string {
	return "subtrack/" + Version
}
