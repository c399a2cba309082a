package version

// Version is the ramcp version, overridden at build time with
// -ldflags "-X github.com/docker/ramcp/pkg/version.Version=...".
var Version = "dev"
