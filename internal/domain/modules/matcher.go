package modules

import (
	"fmt"
	"strings"
)

const wildcard = "*"

// WildcardParam is the Params key holding the remainder matched by a trailing "*".
const WildcardParam = "*"

type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
	segWildcard
)

type segment struct {
	kind  segmentKind
	value string
}

type pattern struct {
	raw      string
	segments []segment
}

func compilePattern(raw string) (pattern, error) {
	parts := splitPath(raw)
	p := pattern{raw: raw, segments: make([]segment, 0, len(parts))}
	seen := make(map[string]bool)
	for i, part := range parts {
		switch {
		case part == wildcard:
			if i != len(parts)-1 {
				return pattern{}, fmt.Errorf("pattern %q: wildcard must be the last segment", raw)
			}
			p.segments = append(p.segments, segment{kind: segWildcard})
		case strings.HasPrefix(part, ":"):
			name := part[1:]
			if name == "" {
				return pattern{}, fmt.Errorf("pattern %q: empty parameter name", raw)
			}
			if seen[name] {
				return pattern{}, fmt.Errorf("pattern %q: duplicate parameter %q", raw, name)
			}
			seen[name] = true
			p.segments = append(p.segments, segment{kind: segParam, value: name})
		default:
			p.segments = append(p.segments, segment{kind: segLiteral, value: part})
		}
	}
	return p, nil
}

// match reports whether path segments fit the pattern and returns captured params.
func (p pattern) match(path []string) (map[string]string, bool) {
	n := len(p.segments)
	open := n > 0 && p.segments[n-1].kind == segWildcard
	fixed := n
	if open {
		fixed = n - 1
		if len(path) < fixed {
			return nil, false
		}
	} else if len(path) != n {
		return nil, false
	}

	params := make(map[string]string)
	for i := 0; i < fixed; i++ {
		seg := p.segments[i]
		switch seg.kind {
		case segLiteral:
			if seg.value != path[i] {
				return nil, false
			}
		case segParam:
			params[seg.value] = path[i]
		}
	}
	if open {
		params[WildcardParam] = strings.Join(path[fixed:], "/")
	}
	return params, true
}

// splitPath drops the query, fragment and empty segments.
func splitPath(path string) []string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	raw := strings.Split(path, "/")
	out := raw[:0]
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NormalizePath returns "/" joined segments without trailing slash or query.
func NormalizePath(path string) string {
	return "/" + strings.Join(splitPath(path), "/")
}

// MatchesBusiness reports whether route applies to businessType. Unknown
// business types match everything so users are not blocked before the
// business type is known.
func MatchesBusiness(route Route, businessType BusinessType) bool {
	if route.Business == BusinessUnknown || !businessType.Known() {
		return true
	}
	return route.Business == businessType
}

// BuildPath substitutes params into pattern. Missing params are left as-is.
func BuildPath(patternPath string, params map[string]string) string {
	parts := splitPath(patternPath)
	for i, part := range parts {
		switch {
		case part == wildcard:
			if rest, ok := params[WildcardParam]; ok {
				parts[i] = strings.Trim(rest, "/")
			}
		case strings.HasPrefix(part, ":"):
			if v, ok := params[part[1:]]; ok {
				parts[i] = v
			}
		}
	}
	return NormalizePath(strings.Join(parts, "/"))
}
