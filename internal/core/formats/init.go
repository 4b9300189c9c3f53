// Package formats registers the upload formats with the core registry.
// Import it for side effects wherever uploads are processed:
//
//	import _ "github.com/JonMunkholm/multinet/internal/core/formats"
//
// Each format file registers itself from init().
package formats

import "github.com/JonMunkholm/multinet/internal/store"

// Format keys, also used as the first URL path segment of upload routes.
const (
	FormatCSV        = "csv"
	FormatD3JSON     = "d3_json"
	FormatNewick     = "newick"
	FormatNestedJSON = "nested_json"
)

// ref builds a "<collection>/<key>" document handle.
func ref(collection, key string) string {
	return store.DocumentID(collection, key)
}
