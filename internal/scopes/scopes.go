package scopes

import "strings"

// Scope identifiers recognized by the authorization server. Everything a
// client can learn about a user through /oauth/userinfo is gated by one of
// these.
const (
	Profile      = "profile"
	Email        = "email"
	SymbolicName = "symbolic_name"
	Tokens       = "tokens"
	Reputation   = "reputation"
)

// All lists every recognized scope.
var All = []string{Profile, Email, SymbolicName, Tokens, Reputation}

// Default is the allowed-scope set assigned to clients registered without
// an explicit scope list.
var Default = []string{Profile, Email, SymbolicName}

// Parse splits a space-delimited scope parameter, dropping empty entries.
func Parse(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Join renders a scope list as the wire-format space-delimited string.
func Join(scopes []string) string {
	return strings.Join(scopes, " ")
}

// IsRecognized reports whether the identifier is a known scope.
func IsRecognized(scope string) bool {
	for _, known := range All {
		if scope == known {
			return true
		}
	}
	return false
}

// Contains reports whether the set includes the scope.
func Contains(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Subset reports whether every requested scope appears in allowed.
func Subset(requested, allowed []string) bool {
	for _, scope := range requested {
		if !Contains(allowed, scope) {
			return false
		}
	}
	return true
}

// Sanitize returns the recognized subset of the given scopes, preserving
// order and removing duplicates.
func Sanitize(scopes []string) []string {
	var out []string
	for _, scope := range scopes {
		if IsRecognized(scope) && !Contains(out, scope) {
			out = append(out, scope)
		}
	}
	return out
}
