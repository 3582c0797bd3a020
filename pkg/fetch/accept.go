package fetch

import (
	"linkcheck/pkg/config"
)

// AcceptSet is the set of HTTP status codes treated as success. The default
// is 200..=299; user additions extend it.
type AcceptSet struct {
	ranges [][2]int
}

// NewAcceptSet parses user accept entries ("200", "200..204"). With no
// entries only the 2xx class is accepted.
func NewAcceptSet(entries []string) (*AcceptSet, error) {
	set := &AcceptSet{ranges: [][2]int{{200, 299}}}
	for _, e := range entries {
		lo, hi, err := config.ParseAcceptRange(e)
		if err != nil {
			return nil, err
		}
		set.ranges = append(set.ranges, [2]int{lo, hi})
	}
	return set, nil
}

// Contains reports whether code is in the accept set.
func (a *AcceptSet) Contains(code int) bool {
	for _, r := range a.ranges {
		if code >= r[0] && code <= r[1] {
			return true
		}
	}
	return false
}
