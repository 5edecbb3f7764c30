package server

import (
	"github.com/Masterminds/semver/v3"
)

// Version is the current version of the proxy.
const Version = "0.2.0"

// APIVersion is the version of the client-facing envelope API. Clients built
// against the same major version can talk to this server.
const APIVersion = "1.0.0"

var apiConstraint *semver.Constraints

func init() {
	var err error
	apiConstraint, err = semver.NewConstraint("^" + APIVersion)
	if err != nil {
		panic(err)
	}
}

// IsAPICompatible reports whether a client expecting the given API version
// can use this server. Invalid version strings are not compatible.
func IsAPICompatible(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return apiConstraint.Check(v)
}
