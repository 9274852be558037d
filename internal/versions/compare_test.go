package versions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a        string
		b        string
		expected Ordering
	}{
		// Identity
		{name: "identical strings", a: "1.2.3", b: "1.2.3", expected: Equal},
		{name: "both empty", a: "", b: "", expected: Equal},
		{name: "identical unresolved macro", a: "$(PKG_VERSION)", b: "$(PKG_VERSION)", expected: Equal},
		// Strict semver delegation
		{name: "newer major version", a: "2.0.0", b: "1.0.0", expected: Greater},
		{name: "older patch version", a: "1.0.1", b: "1.0.2", expected: Lesser},
		{name: "prerelease vs release", a: "1.0.0-alpha", b: "1.0.0", expected: Lesser},
		{name: "build metadata ignored", a: "1.0.0+a", b: "1.0.0+b", expected: Equal},
		{name: "prereleases ordered by semver", a: "1.0.0-alpha", b: "1.0.0-beta", expected: Lesser},
		{name: "numeric prerelease below alphanumeric", a: "1.0.0-1", b: "1.0.0-alpha", expected: Lesser},
		// Semver against the normalized form
		{name: "extra segment beats prerelease", a: "1.0.0.1", b: "1.0.0-alpha", expected: Greater},
		{name: "prerelease below normalized equal", a: "1.0.0-rc1", b: "1_0_0", expected: Lesser},
		{name: "build metadata equals plain form", a: "1.0.0+build", b: "1_0_0", expected: Equal},
		// Normalized fallback
		{name: "more segments wins", a: "1.0.0", b: "1.0", expected: Greater},
		{name: "fewer segments loses", a: "1.0", b: "1.0.0", expected: Lesser},
		{name: "numeric not lexical", a: "1.10", b: "1.9", expected: Greater},
		{name: "hyphen as separator", a: "2.0-1", b: "1.0-1", expected: Greater},
		{name: "underscore equals dot", a: "1_2", b: "1.2", expected: Equal},
		{name: "git pseudo version vs number", a: "2git20230101", b: "2.1", expected: Greater},
		{name: "git dash date vs release", a: "git-20230101", b: "1.0", expected: Lesser},
		{name: "string segments lexical", a: "1.0.beta", b: "1.0.alpha", expected: Greater},
		{name: "string segment above number", a: "1.a", b: "1.2", expected: Greater},
		{name: "string segment above larger number", a: "1a", b: "9", expected: Greater},
		{name: "empty vs zero", a: "", b: "0", expected: Equal},
		{name: "empty vs one", a: "", b: "1", expected: Lesser},
		{name: "unresolved macro is zero", a: "$(call version)", b: "0.1", expected: Lesser},
		{name: "dates", a: "2024.01.15", b: "2023.12.31", expected: Greater},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.expected, Compare(tt.b, tt.a), "comparison must be antisymmetric")
		})
	}
}

func TestCompare_TotalOrder(t *testing.T) {
	t.Parallel()

	corpus := []string{
		"", "0", "1", "1.0", "1.0.0", "1.0.0-1", "1.0-1", "2.0-1", "v1.0.0", "1.0.0-rc1",
		"2git20230101", "git-20230101", "git", "2.1", "10", "9", "a", "b", "1.a", "1.2",
		"$(PKG_VERSION)", "${VER}", "$(call subst,x,y)", "1.$(SUB)", "((", "...", "---",
		"1__2", "+", "99999999999999999999999", "0000", "1.0.0+build", "ñ", "1.0.0-alpha.1",
		"1.0.0-alpha", "1.0.0.1", "1.0.0-beta", "1a", "1_0_0", "1.0.0+other",
	}

	for _, a := range corpus {
		assert.Equal(t, Equal, Compare(a, a), "identity must hold for %q", a)
		for _, b := range corpus {
			ab := Compare(a, b)
			ba := Compare(b, a)
			assert.Contains(t, []Ordering{Lesser, Equal, Greater}, ab)
			assert.Equal(t, -ab, ba, "antisymmetry violated for %q vs %q", a, b)

			for _, c := range corpus {
				bc := Compare(b, c)
				if ab == Lesser && bc == Lesser {
					assert.Equal(t, Lesser, Compare(a, c), "transitivity violated for %q < %q < %q", a, b, c)
				}
				if ab == Equal && bc == Equal {
					assert.Equal(t, Equal, Compare(a, c), "equality not transitive for %q, %q, %q", a, b, c)
				}
			}
		}
	}
}

func TestCompareVersionRelease(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		vA, rA   string
		vB, rB   string
		expected Ordering
	}{
		{name: "version decides", vA: "2.0", rA: "1", vB: "1.0", rB: "9", expected: Greater},
		{name: "release breaks tie", vA: "1.0", rA: "2", vB: "1.0", rB: "1", expected: Greater},
		{name: "both equal", vA: "1.0", rA: "1", vB: "1.0", rB: "1", expected: Equal},
		{name: "older release", vA: "1.0", rA: "1", vB: "1.0", rB: "3", expected: Lesser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, CompareVersionRelease(tt.vA, tt.rA, tt.vB, tt.rB))
		})
	}
}

func TestIsNewerVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		newVersion string
		oldVersion string
		expected   bool
	}{
		{name: "newer major version", newVersion: "2.0.0", oldVersion: "1.0.0", expected: true},
		{name: "older minor version", newVersion: "1.1.0", oldVersion: "1.2.0", expected: false},
		{name: "equal versions", newVersion: "1.0.0", oldVersion: "1.0.0", expected: false},
		{name: "openwrt style newer", newVersion: "2.0-1", oldVersion: "1.0-1", expected: true},
		{name: "empty new version", newVersion: "", oldVersion: "1.0.0", expected: false},
		{name: "empty old version", newVersion: "1.0.0", oldVersion: "", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, IsNewerVersion(tt.newVersion, tt.oldVersion))
		})
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{input: "", expected: "0"},
		{input: "$(VERSION)", expected: "0"},
		{input: "1.2.3", expected: "1.2.3"},
		{input: "1.0-2", expected: "1.0.2"},
		{input: "git-20230101", expected: "0.20230101"},
		{input: "1..2", expected: "1.2"},
		{input: "---", expected: "0"},
		{input: "r1.beta", expected: "r1.beta"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, ParseKey(tt.input).String())
		})
	}
}
