package graph

import (
	"strings"
	"unicode"
)

// EdgeLabel normalizes a relationship type name into a Neo4j relationship
// type: upper-cased, spaces and hyphens become underscores, any other
// character outside [A-Z0-9_] is dropped, and a leading digit is prefixed
// with an underscore. "depends on" becomes DEPENDS_ON.
func EdgeLabel(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(name)) {
		switch {
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		}
	}
	label := b.String()
	if label == "" {
		return "RELATED_TO"
	}
	if label[0] >= '0' && label[0] <= '9' {
		label = "_" + label
	}
	return label
}

// labelConstraintName is the schema constraint name registered per label.
func labelConstraintName(label string) string {
	return "rel_" + strings.ToLower(strings.TrimLeft(label, "_")) + "_id"
}
