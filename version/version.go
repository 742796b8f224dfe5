package version

// FullnodeSemVer is the semantic version of the node. Overridden at build
// time with -ldflags.
var FullnodeSemVer = "0.1.0-dev"

// GitCommit is the current HEAD, set with -ldflags.
var GitCommit string
