package core

import "github.com/JonMunkholm/multinet/internal/store"

// Classify decides a table's kind from its column set. A table holding
// keyField (default _key) is a node table; otherwise a table with both
// _from and _to is an edge table; anything else is unsupported.
//
// The CSV validator and collection creation both call this, so a table
// is never validated as one kind and stored as the other.
func Classify(columns []string, keyField string) TableKind {
	if keyField == "" {
		keyField = store.FieldKey
	}

	var hasKey, hasFrom, hasTo bool
	for _, c := range columns {
		hasKey = hasKey || c == keyField
		hasFrom = hasFrom || c == store.FieldFrom
		hasTo = hasTo || c == store.FieldTo
	}

	switch {
	case hasKey:
		return KindNode
	case hasFrom && hasTo:
		return KindEdge
	default:
		return KindUnsupported
	}
}
