// ABOUTME: Document data model for MongoDB-style collections
// ABOUTME: Defines the Document map type, ID generation, and deep copying

package document

import (
	"github.com/google/uuid"
)

// IDField is the reserved document identifier field
const IDField = "_id"

// Document is a schemaless record. Values are what encoding/json produces:
// strings, float64 numbers, bools, nil, []interface{}, and nested
// map[string]interface{}.
type Document map[string]interface{}

// NewID generates a new unique document identifier
func NewID() string {
	return uuid.NewString()
}

// ID returns the document's identifier, or "" when unset
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Clone returns a deep copy of the document
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneMap(d)
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneMap(val)
	case Document:
		return Document(cloneMap(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
