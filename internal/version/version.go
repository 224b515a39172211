// Package version carries build identification, stamped via -ldflags.
package version

var (
	// Version is the release version of the replay daemon.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build identity for logs and the status API.
func String() string {
	return Version + " (" + GitSHA + ", " + BuildTime + ")"
}
