package scope

import (
	"fmt"
	"strings"
)

// Separator is the character between scope components in the surface syntax.
const Separator = "/"

// Root is the root scope "/" under which every other scope lives.
var Root = Scope{}

// Scope designates one channel of the hierarchical bus namespace.
//
// The zero value is the root scope "/". Scopes are immutable; all methods
// return new values.
type Scope struct {
	components []string
}

// Parse builds a Scope from its string representation, e.g. "/a/deep/scope/".
// The representation must start with a slash; a missing trailing slash is
// tolerated. Components may contain letters, digits, underscores and
// hyphens only.
func Parse(s string) (Scope, error) {
	if s == "" {
		return Scope{}, fmt.Errorf("scope: empty string does not designate a scope; use %q for the root scope", Separator)
	}
	if !strings.HasPrefix(s, Separator) {
		return Scope{}, fmt.Errorf("scope: %q must start with %q", s, Separator)
	}

	trimmed := strings.Trim(s, Separator)
	if trimmed == "" {
		return Root, nil
	}

	components := strings.Split(trimmed, Separator)
	for _, c := range components {
		if !validComponent(c) {
			return Scope{}, fmt.Errorf("scope: invalid component %q in %q", c, s)
		}
	}
	return Scope{components: components}, nil
}

// MustParse is like Parse but panics on invalid input. Intended for
// constant scopes.
func MustParse(s string) Scope {
	sc, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sc
}

func validComponent(c string) bool {
	if c == "" {
		return false
	}
	for i := 0; i < len(c); i++ {
		b := c[i]
		switch {
		case b >= 'a' && b <= 'z':
		case b >= 'A' && b <= 'Z':
		case b >= '0' && b <= '9':
		case b == '-' || b == '_':
		default:
			return false
		}
	}
	return true
}

// Components returns the scope components ordered from the highest level
// of the hierarchy downward. The root scope returns nil.
func (s Scope) Components() []string {
	if len(s.components) == 0 {
		return nil
	}
	out := make([]string, len(s.components))
	copy(out, s.components)
	return out
}

// String returns the canonical representation with leading and trailing
// slashes, e.g. "/a/b/".
func (s Scope) String() string {
	if len(s.components) == 0 {
		return Separator
	}
	return Separator + strings.Join(s.components, Separator) + Separator
}

// Bytes returns the canonical representation as ASCII bytes, the form used
// on the wire.
func (s Scope) Bytes() []byte {
	return []byte(s.String())
}

// Concat returns the sub-scope formed by appending child to s, e.g.
// Concat of "/this/is/" and "/a/test/" is "/this/is/a/test/".
func (s Scope) Concat(child Scope) Scope {
	if len(child.components) == 0 {
		return s
	}
	components := make([]string, 0, len(s.components)+len(child.components))
	components = append(components, s.components...)
	components = append(components, child.components...)
	return Scope{components: components}
}

// Equal reports whether two scopes designate the same channel.
func (s Scope) Equal(other Scope) bool {
	if len(s.components) != len(other.components) {
		return false
	}
	for i, c := range s.components {
		if other.components[i] != c {
			return false
		}
	}
	return true
}

// IsSubScopeOf reports whether other is a strict prefix of s, e.g. "/a/b/"
// is a sub-scope of "/a/". Equal scopes are not sub-scopes of each other.
func (s Scope) IsSubScopeOf(other Scope) bool {
	if len(s.components) <= len(other.components) {
		return false
	}
	for i, c := range other.components {
		if s.components[i] != c {
			return false
		}
	}
	return true
}

// IsSuperScopeOf is the inverse of IsSubScopeOf. Equal scopes are not
// super-scopes of each other.
func (s Scope) IsSuperScopeOf(other Scope) bool {
	return other.IsSubScopeOf(s)
}

// SuperScopes returns all super-scopes ordered by hierarchy with the root
// scope first. With includeSelf, s itself is the last element.
func (s Scope) SuperScopes(includeSelf bool) []Scope {
	max := len(s.components)
	if !includeSelf {
		max--
	}
	supers := make([]Scope, 0, max+1)
	for i := 0; i <= max; i++ {
		supers = append(supers, Scope{components: s.components[:i]})
	}
	return supers
}

// Compare orders scopes by their string representation. It returns a
// negative number, zero, or a positive number when s sorts before, equal
// to, or after other.
func (s Scope) Compare(other Scope) int {
	return strings.Compare(s.String(), other.String())
}
