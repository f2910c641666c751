// Package version provides build-time version information for infrawatch binaries.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/infrawatch/infrawatch/internal/version.Version=1.0.0 \
//	                   -X github.com/infrawatch/infrawatch/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/infrawatch/infrawatch/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

// Build-time variables (set via ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit hash (short form)
	Commit = "unknown"

	// BuildTime is the UTC build timestamp (ISO 8601)
	BuildTime = "unknown"
)

// Info is the JSON shape reported by the health endpoint and `infrawatch version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Current returns the build information of the running binary.
func Current() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent is sent by the API client and the realtime transport.
func UserAgent() string {
	return "infrawatch/" + Version
}
