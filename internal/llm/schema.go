// ABOUTME: JSON schema hints for structured generation prompts
// ABOUTME: Schemas are reflected from Go types so prompts and decoding agree
package llm

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaCache sync.Map // reflect.Type -> string

// SchemaFor returns the compact JSON schema of T, suitable for embedding in
// a prompt. Results are cached per type.
func SchemaFor[T any]() string {
	var v T
	t := reflect.TypeOf(v)
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(string)
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	schema.ID = ""

	b, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	out := string(b)
	schemaCache.Store(t, out)
	return out
}
