package store

import (
	"strings"

	"github.com/google/uuid"
)

// NewKey returns a random document key for backends that do not
// generate keys themselves.
func NewKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DocumentKey returns doc's _key as a string, or "" when unset.
func DocumentKey(doc Document) string {
	if k, ok := doc[FieldKey].(string); ok {
		return k
	}
	return ""
}

// DocumentID builds the "<collection>/<key>" handle for a document.
func DocumentID(collection, key string) string {
	return collection + "/" + key
}

// Prepare copies doc, assigns a key when it has none and sets _id.
// It returns the copy and its metadata.
func Prepare(collection string, doc Document) (Document, DocumentMeta) {
	out := make(Document, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}
	key := DocumentKey(out)
	if key == "" {
		key = NewKey()
		out[FieldKey] = key
	}
	id := DocumentID(collection, key)
	out[FieldID] = id
	return out, DocumentMeta{Key: key, ID: id}
}

// StripSystemFields removes _id and _rev from a copy of doc.
func StripSystemFields(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if k == FieldID || k == FieldRev {
			continue
		}
		out[k] = v
	}
	return out
}
