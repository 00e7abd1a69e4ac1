package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const compatLogPrefix = "semver:compat"

// Gate accepts or refuses announced protocol versions.
type Gate struct {
	rangeStr   string
	constraint *masterminds.Constraints
	major      int
}

// NewGate builds a gate from a range. An empty range accepts peers sharing
// the major of local; a major-only range such as "1" accepts that major.
func NewGate(local, rangeStr string) (*Gate, error) {
	if rangeStr == "" {
		v, err := ParseVersion(local)
		if err != nil {
			return nil, fmt.Errorf("%s - %w", compatLogPrefix, err)
		}
		rangeStr = fmt.Sprintf("^%d.0.0-0", v.Major())
	}

	g := &Gate{rangeStr: rangeStr, major: ExtractMajorFromRange(rangeStr)}
	if g.major >= 0 {
		return g, nil
	}

	c, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version range %q: %w", compatLogPrefix, rangeStr, err)
	}
	g.constraint = c
	return g, nil
}

// String returns the range the gate enforces.
func (g *Gate) String() string {
	return g.rangeStr
}

// Allows reports whether version is inside the range. Unparseable versions
// are refused.
func (g *Gate) Allows(version string) bool {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	if g.major >= 0 {
		return int(sv.Major()) == g.major
	}
	return g.constraint.Check(sv)
}
