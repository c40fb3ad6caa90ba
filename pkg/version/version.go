// Package version reports the build metadata stamped into the binary, e.g.
//
//	go build -ldflags "-X github.com/CuBnIcK/warfacebot/pkg/version.tag=v1.0.0
//	  -X github.com/CuBnIcK/warfacebot/pkg/version.commit=abc1234
//	  -X github.com/CuBnIcK/warfacebot/pkg/version.date=2026-01-01
//	  -X github.com/CuBnIcK/warfacebot/pkg/version.buildType=--release"
package version

import "strings"

var (
	tag, commit, date string
	buildType         = "--release"
)

// Info is the metadata of the running build. Unstamped fields are empty.
type Info struct {
	Tag       string
	Commit    string
	Date      string
	BuildType string // announced as build_type when entering a channel
}

// Get returns the stamped metadata.
func Get() Info {
	return Info{Tag: tag, Commit: commit, Date: date, BuildType: buildType}
}

// BuildType returns the build flavour sent with channel logins.
func BuildType() string { return buildType }

// String returns the tag, else the commit, else "dev".
func (i Info) String() string {
	switch {
	case i.Tag != "":
		return i.Tag
	case i.Commit != "":
		return i.Commit
	default:
		return "dev"
	}
}

// Full returns a one-line description for -version output, such as
// "v1.0.0 commit=abc1234 date=2026-01-01 build=--release".
func (i Info) Full() string {
	parts := []string{i.String()}
	if i.Tag != "" && i.Commit != "" {
		parts = append(parts, "commit="+i.Commit)
	}
	if i.Date != "" {
		parts = append(parts, "date="+i.Date)
	}
	if i.BuildType != "" {
		parts = append(parts, "build="+i.BuildType)
	}
	return strings.Join(parts, " ")
}
