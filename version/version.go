// Package version holds the build version of hubrunner. It is overridden at
// build time with -ldflags "-X hubrunner/version.Version=...".
package version

var Version = "dev"
