package vartree

import "strings"

// Node ids are derived from the path of names from the tree root, never
// from DAP variable references: references are invalidated on every pause
// while user expansion intent must persist across pauses. A scope root
// "Global" becomes "scope:Global"; its child "process" becomes
// "scope:Global/process". Name segments are percent-escaped so no two
// distinct paths can collapse to the same id.

const (
	idSeparator = "/"
	scopePrefix = "scope:"
)

var (
	segmentEscaper   = strings.NewReplacer("%", "%25", "/", "%2F")
	segmentUnescaper = strings.NewReplacer("%2F", "/", "%25", "%")
)

// ScopeID returns the id of a top-level scope node.
func ScopeID(name string) string {
	return scopePrefix + segmentEscaper.Replace(name)
}

// ChildID derives the id of a named child from its parent id. Pure
// function: identical (parentID, name) pairs always yield identical ids.
func ChildID(parentID, name string) string {
	return parentID + idSeparator + segmentEscaper.Replace(name)
}

// SegmentNames returns the display-name path encoded in an id, root first.
func SegmentNames(id string) []string {
	trimmed := strings.TrimPrefix(id, scopePrefix)
	raw := strings.Split(trimmed, idSeparator)
	names := make([]string, len(raw))
	for i, seg := range raw {
		names[i] = segmentUnescaper.Replace(seg)
	}
	return names
}

// BaseName returns the display name of the last id segment.
func BaseName(id string) string {
	names := SegmentNames(id)
	return names[len(names)-1]
}

// IsScopeID reports whether id names a top-level scope node.
func IsScopeID(id string) bool {
	return strings.HasPrefix(id, scopePrefix) && !strings.Contains(id, idSeparator)
}
