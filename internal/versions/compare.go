package versions

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Ordering is the result of comparing two version strings
type Ordering int

const (
	// Lesser means the left operand sorts before the right one
	Lesser Ordering = -1
	// Equal means both operands sort at the same position
	Equal Ordering = 0
	// Greater means the left operand sorts after the right one
	Greater Ordering = 1
)

// String returns a human readable form of the ordering
func (o Ordering) String() string {
	switch o {
	case Lesser:
		return "lesser"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	default:
		return "unknown"
	}
}

// segment is one dot-separated component of a normalized version string
type segment struct {
	num   uint64
	str   string
	isNum bool
}

func (s segment) text() string {
	if s.isNum {
		return strconv.FormatUint(s.num, 10)
	}
	return s.str
}

// compare orders numbers numerically, strings lexically and every number below
// every string
func (s segment) compare(o segment) Ordering {
	switch {
	case s.isNum && o.isNum:
		switch {
		case s.num < o.num:
			return Lesser
		case s.num > o.num:
			return Greater
		default:
			return Equal
		}
	case s.isNum:
		return Lesser
	case o.isNum:
		return Greater
	}
	return Ordering(strings.Compare(s.str, o.str))
}

// Key is the ordered tuple of integer and string segments derived from a version
// or release string. Keys compare component-wise; when one key is a prefix of the
// other, the longer key is greater.
type Key []segment

// separators are folded into dots before splitting
var separators = strings.NewReplacer("_", ".", "-", ".", "+", ".")

// ParseKey normalizes a version-like string into a Key.
//
// Empty input and input starting with an unexpanded make variable ("$(...)",
// "${...}") become a single zero segment. Underscores, hyphens and plus signs are
// treated as dots and the literal "git" becomes "0", so pseudo-versions such as
// "git-20230101" read as 0.20230101 instead of sorting as opaque strings.
func ParseKey(s string) Key {
	zero := Key{{isNum: true}}
	if s == "" || strings.HasPrefix(s, "$") {
		return zero
	}

	normalized := strings.ReplaceAll(separators.Replace(s), "git", "0")
	parts := strings.Split(normalized, ".")

	key := make(Key, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if n, err := strconv.ParseUint(part, 10, 64); err == nil {
			key = append(key, segment{num: n, isNum: true})
			continue
		}
		key = append(key, segment{str: part})
	}

	if len(key) == 0 {
		return zero
	}
	return key
}

// Compare orders two keys
func (k Key) Compare(other Key) Ordering {
	n := min(len(k), len(other))
	for i := 0; i < n; i++ {
		if c := k[i].compare(other[i]); c != Equal {
			return c
		}
	}

	switch {
	case len(k) < len(other):
		return Lesser
	case len(k) > len(other):
		return Greater
	default:
		return Equal
	}
}

// String renders the key back in dotted form
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, s := range k {
		parts[i] = s.text()
	}
	return strings.Join(parts, ".")
}

// parsed is a version split into the part every input has and an optional semver
// prerelease
type parsed struct {
	main Key
	pre  *semver.Version
}

func parse(s string) parsed {
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return parsed{main: ParseKey(s)}
	}

	p := parsed{main: Key{
		{num: v.Major(), isNum: true},
		{num: v.Minor(), isNum: true},
		{num: v.Patch(), isNum: true},
	}}
	if v.Prerelease() != "" {
		p.pre = v
	}
	return p
}

// Compare orders two version (or release) strings. It never panics and yields a
// total order for any set of inputs.
//
// Textually identical strings are Equal without any parsing. Strict semantic
// versions contribute major.minor.patch to the normalized key, drop build
// metadata and keep their prerelease; everything else is normalized with
// ParseKey. Keys are compared first. On a tie a prerelease sorts below no
// prerelease, and two prereleases are ordered by semver.
func Compare(a, b string) Ordering {
	if a == b {
		return Equal
	}

	pa, pb := parse(a), parse(b)
	if c := pa.main.Compare(pb.main); c != Equal {
		return c
	}

	switch {
	case pa.pre == nil && pb.pre == nil:
		return Equal
	case pa.pre == nil:
		return Greater
	case pb.pre == nil:
		return Lesser
	}
	return Ordering(pa.pre.Compare(pb.pre))
}

// CompareVersionRelease orders (version, release) pairs: versions first, releases
// only break version ties.
func CompareVersionRelease(versionA, releaseA, versionB, releaseB string) Ordering {
	if c := Compare(versionA, versionB); c != Equal {
		return c
	}
	return Compare(releaseA, releaseB)
}

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion.
func IsNewerVersion(newVersion, oldVersion string) bool {
	return Compare(newVersion, oldVersion) == Greater
}
