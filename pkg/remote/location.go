package remote

import (
	"fmt"
	"strings"
)

// Location is a file on a remote host (user@host:path) or, with an empty
// Host, a local path
type Location struct {
	User string
	Host string
	Path string
}

// Local returns the Location of a local path
func Local(path string) Location {
	return Location{Path: path}
}

// IsRemote reports whether the location names a host
func (l Location) IsRemote() bool {
	return l.Host != ""
}

// String renders the location in scp syntax
func (l Location) String() string {
	switch {
	case !l.IsRemote():
		return l.Path
	case l.User == "":
		return l.Host + ":" + l.Path
	default:
		return l.User + "@" + l.Host + ":" + l.Path
	}
}

// ParseLocation parses "user@host:path", "host:path" or a local path.
// A colon after the first slash belongs to a local path.
func ParseLocation(s string) (Location, error) {
	if s == "" {
		return Location{}, fmt.Errorf("empty location")
	}

	colon := strings.IndexByte(s, ':')
	if colon < 0 || (strings.IndexByte(s, '/') >= 0 && strings.IndexByte(s, '/') < colon) {
		return Local(s), nil
	}

	hostPart, path := s[:colon], s[colon+1:]
	if path == "" {
		return Location{}, fmt.Errorf("location %q has no path", s)
	}

	loc := Location{Host: hostPart, Path: path}
	if at := strings.LastIndexByte(hostPart, '@'); at >= 0 {
		loc.User, loc.Host = hostPart[:at], hostPart[at+1:]
	}
	if loc.Host == "" {
		return Location{}, fmt.Errorf("location %q has no host", s)
	}
	return loc, nil
}
