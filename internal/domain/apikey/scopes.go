package apikey

import "strings"

// Scope is a named permission persisted as a delimited list on the key
// record. ScopeFullAccess satisfies every check unconditionally.
type Scope string

const (
	ScopeReadUsers   Scope = "READ_USERS"
	ScopeWriteUsers  Scope = "WRITE_USERS"
	ScopeReadBrands  Scope = "READ_BRANDS"
	ScopeWriteBrands Scope = "WRITE_BRANDS"
	ScopeReadUsage   Scope = "READ_USAGE"
	ScopeAdminAccess Scope = "ADMIN_ACCESS"
	ScopeFullAccess  Scope = "FULL_ACCESS"
)

var knownScopes = map[Scope]struct{}{
	ScopeReadUsers:   {},
	ScopeWriteUsers:  {},
	ScopeReadBrands:  {},
	ScopeWriteBrands: {},
	ScopeReadUsage:   {},
	ScopeAdminAccess: {},
	ScopeFullAccess:  {},
}

type ScopeSet []Scope

// ParseScopes decodes a comma-separated scope list. Unknown tokens are
// dropped and returned separately so the caller can warn; they are never
// fatal. Duplicates collapse.
func ParseScopes(raw string) (ScopeSet, []string) {
	var (
		scopes  ScopeSet
		unknown []string
		seen    = make(map[Scope]struct{})
	)
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		s := Scope(strings.ToUpper(tok))
		if _, ok := knownScopes[s]; !ok {
			unknown = append(unknown, tok)
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		scopes = append(scopes, s)
	}
	return scopes, unknown
}

func (s ScopeSet) Encode() string {
	parts := make([]string, len(s))
	for i, scope := range s {
		parts[i] = string(scope)
	}
	return strings.Join(parts, ",")
}

func (s ScopeSet) Has(scope Scope) bool {
	for _, g := range s {
		if g == scope {
			return true
		}
	}
	return false
}

// Satisfies reports whether the granted set authorizes an operation that
// requires the given scopes. FULL_ACCESS short-circuits. With requireAll
// false a non-empty intersection suffices; with requireAll true every
// required scope must be granted. An empty required set always passes.
func (s ScopeSet) Satisfies(required []Scope, requireAll bool) bool {
	if len(required) == 0 {
		return true
	}
	if s.Has(ScopeFullAccess) {
		return true
	}
	if requireAll {
		for _, r := range required {
			if !s.Has(r) {
				return false
			}
		}
		return true
	}
	for _, r := range required {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Missing returns the required scopes absent from the granted set, for
// internal logging only.
func (s ScopeSet) Missing(required []Scope) []Scope {
	var missing []Scope
	for _, r := range required {
		if !s.Has(r) {
			missing = append(missing, r)
		}
	}
	return missing
}
