// Package build holds version information stamped in at release time via
// -ldflags. The defaults identify a from-source build.
package build

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)
